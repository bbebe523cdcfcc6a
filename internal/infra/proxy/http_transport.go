package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	configs "go_mock_resolver/internal/infra/config"
	"go_mock_resolver/utils"

	"github.com/google/martian/v3"
	"github.com/google/martian/v3/header"
	"github.com/sony/gobreaker"
)

// errCallerGone 调用方 ctx 已取消或超时，不计入熔断失败
var errCallerGone = errors.New("caller abandoned proxy request")

// HTTPTransport 未命中规则时把请求原样转发到真实上游
type HTTPTransport struct {
	target    *url.URL
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	hopByHop  martian.RequestResponseModifier
	forwarded martian.RequestModifier
}

var _ model.ProxyTransport = (*HTTPTransport)(nil)

// NewProxyTransport proxy.enabled=false 时返回 nil，Responder 直接返回 404
func NewProxyTransport(c *configs.RuleConfig) (model.ProxyTransport, error) {
	if !c.Proxy.Enabled {
		return nil, nil
	}
	t, err := NewHTTPTransport(c.Proxy)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func NewHTTPTransport(cfg configs.ProxyConfig) (*HTTPTransport, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", cfg.Target, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("proxy target %q must be an absolute url", cfg.Target)
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "proxy:" + target.Host,
		MaxRequests: cfg.Breaker.HalfOpenMax,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			utils.GetLogger().Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
	})

	return &HTTPTransport{
		target: target,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// 上游的重定向原样交给客户端
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		breaker:   breaker,
		hopByHop:  header.NewHopByHopModifier(),
		forwarded: header.NewForwardedModifier(),
	}, nil
}

func (t *HTTPTransport) Forward(ctx context.Context, req *model.ProxyRequest) (*model.ProxyResponse, error) {
	outbound, err := t.buildRequest(ctx, req)
	if err != nil {
		return nil, &model.ProxyUpstreamError{Kind: model.ProxyTransportFailure, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, &model.ProxyUpstreamError{Kind: classify(err), Err: err}
	}

	result, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.client.Do(outbound)
		if err != nil {
			return nil, callerAware(ctx, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, callerAware(ctx, fmt.Errorf("failed to read upstream body: %w", err))
		}
		if err := t.hopByHop.ModifyResponse(resp); err != nil {
			return nil, err
		}
		return &model.ProxyResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}, nil
	})
	if err != nil {
		return nil, &model.ProxyUpstreamError{Kind: classify(err), Err: err}
	}
	return result.(*model.ProxyResponse), nil
}

// callerAware client.Timeout 不会取消调用方 ctx，所以只有客户端断开会被标记
func callerAware(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", errCallerGone, err)
	}
	return err
}

func (t *HTTPTransport) buildRequest(ctx context.Context, req *model.ProxyRequest) (*http.Request, error) {
	u := *t.target
	u.Path = strings.TrimSuffix(t.target.Path, "/") + req.Path
	u.RawPath = ""
	if req.RawPath != "" {
		// 保留客户端的原始编码，例如 %2F
		u.RawPath = strings.TrimSuffix(t.target.EscapedPath(), "/") + req.RawPath
	}
	u.RawQuery = req.RawQuery

	outbound, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	outbound.Header = req.Header.Clone()
	if outbound.Header == nil {
		outbound.Header = http.Header{}
	}
	outbound.Header.Del("Host")
	outbound.Header.Del("Content-Length")
	if err := t.hopByHop.ModifyRequest(outbound); err != nil {
		return nil, err
	}

	// X-Forwarded-* 使用原始 Host 与客户端地址，发送时 Host 回到上游地址
	outbound.Host = req.Host
	outbound.RemoteAddr = req.ClientIP
	if err := t.forwarded.ModifyRequest(outbound); err != nil {
		return nil, err
	}
	outbound.Host = ""
	outbound.RemoteAddr = ""
	return outbound, nil
}

func classify(err error) model.ProxyErrorKind {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return model.ProxyCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ProxyTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ProxyTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return model.ProxyConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return model.ProxyConnection
	}
	return model.ProxyTransportFailure
}
