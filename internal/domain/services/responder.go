package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	model "go_mock_resolver/internal/domain/model/mock_rule"

	"github.com/sirupsen/logrus"
)

// StatusClientClosed 客户端提前断开时记录的状态码
const StatusClientClosed = 499

// FaultTimeoutDelay simulate_error 为 timeout 时的挂起时长
const FaultTimeoutDelay = 30 * time.Second

// Sleeper 可取消的等待，测试中可替换
type Sleeper func(ctx context.Context, d time.Duration) error

type Responder struct {
	matcher   *RuleMatchService
	validator *ValidatorService
	templater *Templater
	proxy     model.ProxyTransport
	recorder  model.OutcomeRecorder
	rand      model.RandSource
	sleep     Sleeper
	log       *logrus.Logger
	now       func() time.Time
}

type ResponderOption func(*Responder)

// WithProxy 开启未命中转发，nil 表示关闭
func WithProxy(p model.ProxyTransport) ResponderOption {
	return func(r *Responder) { r.proxy = p }
}

func WithRecorder(rec model.OutcomeRecorder) ResponderOption {
	return func(r *Responder) { r.recorder = rec }
}

func WithRandSource(src model.RandSource) ResponderOption {
	return func(r *Responder) { r.rand = src }
}

func WithSleeper(s Sleeper) ResponderOption {
	return func(r *Responder) { r.sleep = s }
}

func WithLogger(l *logrus.Logger) ResponderOption {
	return func(r *Responder) { r.log = l }
}

func NewResponder(matcher *RuleMatchService, validator *ValidatorService, templater *Templater, opts ...ResponderOption) *Responder {
	r := &Responder{
		matcher:   matcher,
		validator: validator,
		templater: templater,
		rand:      globalRand{},
		sleep:     sleepContext,
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle 匹配 -> 校验 -> 渲染 -> 延迟；未命中时转发或 404。每个请求都会上报一条结果记录
func (s *Responder) Handle(ctx context.Context, req *model.RequestContext) (*model.MockResponse, error) {
	start := s.now()
	resp, err := s.resolve(ctx, req)
	s.record(req, resp, err, start)
	return resp, err
}

func (s *Responder) resolve(ctx context.Context, req *model.RequestContext) (*model.MockResponse, error) {
	result, ok := s.matcher.MatchRule(ctx, req)
	if !ok {
		if s.proxy != nil {
			return s.forward(ctx, req)
		}
		return jsonResponse(http.StatusNotFound, map[string]string{"error": "No matching route found"}), nil
	}

	rule := result.Rule.Rule
	rc := req.WithParams(result.PathParams)
	logger := s.log.WithFields(logrus.Fields{"request_id": req.ID, "rule_id": rule.ID, "score": result.Score})

	if verr := s.validator.Validate(rule, rc); verr != nil {
		logger.Infof("request validation failed: %v", verr)
		resp, delay := s.validationResponse(rule, verr)
		resp.RuleID = rule.ID
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		resp.Delay = delay
		return resp, nil
	}

	spec := &rule.Response
	delay := s.resolveDelay(spec)
	if err := s.sleep(ctx, delay); err != nil {
		return nil, err
	}
	if p := spec.FaultProbability(); p > 0 && s.rand.Float64() < p {
		logger.Infof("simulating %s fault", spec.Fault())
		resp, err := s.simulateFault(ctx, spec.Fault())
		if err != nil {
			return nil, err
		}
		resp.RuleID = rule.ID
		resp.Delay += delay
		return resp, nil
	}

	content := s.templater.Render(spec.Content, rc)
	body, err := encodeContent(spec.MediaType(), content)
	if err != nil {
		// Value 编码只会因为非法数字字面量失败，注册时已排除
		logger.Errorf("failed to encode response content: %v", err)
		return jsonResponse(http.StatusInternalServerError, map[string]string{"error": "failed to encode response"}), nil
	}
	header := http.Header{}
	for k, v := range s.templater.RenderHeaders(spec.Headers, rc) {
		header.Set(k, v)
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", spec.MediaType())
	}

	logger.Debugf("matched rule responded %d after %s", spec.Status(), delay)
	return &model.MockResponse{
		StatusCode: spec.Status(),
		Header:     header,
		Body:       body,
		RuleID:     rule.ID,
		Delay:      delay,
	}, nil
}

// simulateFault timeout 先挂起 FaultTimeoutDelay 再返回 408
func (s *Responder) simulateFault(ctx context.Context, fault model.FaultType) (*model.MockResponse, error) {
	switch fault {
	case model.FaultTimeout:
		if err := s.sleep(ctx, FaultTimeoutDelay); err != nil {
			return nil, err
		}
		resp := jsonResponse(http.StatusRequestTimeout, map[string]string{"error": "Request Timeout"})
		resp.Delay = FaultTimeoutDelay
		return resp, nil
	case model.FaultNetworkError:
		return jsonResponse(http.StatusServiceUnavailable, map[string]string{"error": "Service Unavailable"}), nil
	default:
		return jsonResponse(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"}), nil
	}
}

// validationResponse 错误响应不做模板渲染，但仍然遵守其延迟配置
func (s *Responder) validationResponse(rule *model.MockRule, verr *model.ValidationError) (*model.MockResponse, time.Duration) {
	spec := rule.Validator.ErrorResponse
	if spec == nil {
		return jsonResponse(http.StatusBadRequest, map[string]string{
			"error": verr.Detail,
			"kind":  string(verr.Kind),
			"field": verr.Field,
		}), 0
	}
	body, err := encodeContent(spec.MediaType(), spec.Content)
	if err != nil {
		body = nil
	}
	header := http.Header{}
	for k, v := range spec.Headers {
		header.Set(k, v)
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", spec.MediaType())
	}
	return &model.MockResponse{StatusCode: spec.Status(), Header: header, Body: body}, s.resolveDelay(spec)
}

func (s *Responder) forward(ctx context.Context, req *model.RequestContext) (*model.MockResponse, error) {
	upstream, err := s.proxy.Forward(ctx, &model.ProxyRequest{
		Method:   req.Method,
		Path:     req.Path,
		RawPath:  req.RawPath,
		RawQuery: req.RawQuery,
		Header:   req.Headers.Clone(),
		Body:     req.RawBody,
		Host:     req.Host,
		ClientIP: req.ClientIP,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var perr *model.ProxyUpstreamError
		if !errors.As(err, &perr) {
			perr = &model.ProxyUpstreamError{Kind: model.ProxyTransportFailure, Err: err}
		}
		s.log.WithField("request_id", req.ID).Warnf("proxy fallback failed: %v", perr)
		status := http.StatusBadGateway
		if perr.Kind == model.ProxyTimeout {
			status = http.StatusGatewayTimeout
		}
		resp := jsonResponse(status, map[string]string{"error": "Upstream request failed", "kind": string(perr.Kind)})
		resp.Proxied = true
		return resp, nil
	}
	return &model.MockResponse{
		StatusCode: upstream.StatusCode,
		Header:     upstream.Header,
		Body:       upstream.Body,
		Proxied:    true,
	}, nil
}

func (s *Responder) resolveDelay(spec *model.ResponseSpec) time.Duration {
	seconds := spec.Delay
	if len(spec.DelayRange) == 2 {
		low, high := spec.DelayRange[0], spec.DelayRange[1]
		seconds = low + s.rand.Float64()*(high-low)
	}
	return time.Duration(seconds * float64(time.Second))
}

func (s *Responder) record(req *model.RequestContext, resp *model.MockResponse, err error, start time.Time) {
	if s.recorder == nil {
		return
	}
	outcome := model.Outcome{
		Timestamp: start,
		RequestID: req.ID,
		Method:    req.Method,
		Path:      req.Path,
		LatencyMS: s.now().Sub(start).Milliseconds(),
		ClientIP:  req.ClientIP,
	}
	switch {
	case resp != nil:
		outcome.StatusCode = resp.StatusCode
		outcome.Proxied = resp.Proxied
		if resp.RuleID != "" {
			id := resp.RuleID
			outcome.MatchedRuleID = &id
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome.StatusCode = StatusClientClosed
	default:
		outcome.StatusCode = http.StatusInternalServerError
	}
	s.recorder.Record(outcome)
}

func encodeContent(mediaType string, content model.Value) ([]byte, error) {
	if s, ok := content.AsString(); ok && !strings.Contains(mediaType, "json") {
		return []byte(s), nil
	}
	if content.IsNull() && !strings.Contains(mediaType, "json") {
		return nil, nil
	}
	return json.Marshal(content)
}

func jsonResponse(status int, payload map[string]string) *model.MockResponse {
	body, _ := json.Marshal(payload)
	header := http.Header{}
	header.Set("Content-Type", model.DefaultContentType)
	return &model.MockResponse{StatusCode: status, Header: header, Body: body}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// globalRand math/rand/v2 的全局源是并发安全的
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
