package model

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"
)

// RequestContext 单次请求派生的上下文，核心流程只读不持久化
type RequestContext struct {
	ID         string
	Method     string
	Host       string
	Path       string
	RawPath    string // 原始编码的路径，转发时使用
	PathParams map[string]string // 由 Matcher 在命中后填充
	Query      url.Values
	RawQuery   string
	Headers    http.Header
	Body       any // JSON / form 解析后的结构，否则为原始 []byte
	RawBody    []byte
	ClientIP   string
	ReceivedAt time.Time
}

// NewRequestContext 读取请求体（最多 maxBody 字节）并解析
func NewRequestContext(r *http.Request, id string, maxBody int64) (*RequestContext, error) {
	var raw []byte
	if r.Body != nil {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		raw = body
	}

	return &RequestContext{
		ID:         id,
		Method:     strings.ToUpper(r.Method),
		Host:       r.Host,
		Path:       r.URL.Path,
		RawPath:    r.URL.EscapedPath(),
		PathParams: map[string]string{},
		Query:      r.URL.Query(),
		RawQuery:   r.URL.RawQuery,
		Headers:    r.Header.Clone(),
		Body:       ParseBody(r.Header.Get("Content-Type"), raw),
		RawBody:    raw,
		ClientIP:   ClientIP(r),
		ReceivedAt: time.Now(),
	}, nil
}

// ParseBody 结构化 content-type 解析为通用结构，整数保持 int64，小数为 float64
func ParseBody(contentType string, raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		data, err := oj.Parse(raw)
		if err != nil {
			return raw
		}
		return data
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return raw
		}
		form := make(map[string]any, len(values))
		for k, v := range values {
			if len(v) > 0 {
				form[k] = v[0]
			}
		}
		return form
	default:
		return raw
	}
}

// ClientIP 优先取 X-Forwarded-For 第一个地址
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FirstQuery 同名参数取第一个值
func (c *RequestContext) FirstQuery(name string) (string, bool) {
	values, ok := c.Query[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (c *RequestContext) Header(name string) (string, bool) {
	values := c.Headers.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// WithParams 返回携带路径参数的浅拷贝，原上下文不被修改
func (c *RequestContext) WithParams(params map[string]string) *RequestContext {
	cp := *c
	cp.PathParams = params
	return &cp
}
