package services

import (
	"regexp"
	"strings"
	"time"

	model "go_mock_resolver/internal/domain/model/mock_rule"
)

// tokenPattern {scope.key} 或 {timestamp} / {now}，未知 scope 的花括号文本原样保留
var tokenPattern = regexp.MustCompile(`\{(?:(request|path|query|body|random)\.([A-Za-z0-9_.\-]+)|(timestamp|now))\}`)

const (
	randomIntMin    = 1
	randomIntMax    = 1000
	randomStringLen = 8
	randomAlphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	nowLayout       = "2006-01-02 15:04:05"
)

type Templater struct {
	log  model.LogSink
	rand model.RandSource
	now  func() time.Time
}

type TemplaterOption func(*Templater)

// WithTemplateRand {random.*} 使用的随机源
func WithTemplateRand(src model.RandSource) TemplaterOption {
	return func(t *Templater) { t.rand = src }
}

func WithTemplateClock(now func() time.Time) TemplaterOption {
	return func(t *Templater) { t.now = now }
}

func NewTemplater(log model.LogSink, opts ...TemplaterOption) *Templater {
	t := &Templater{log: log, rand: globalRand{}, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Render 递归渲染内容树，从不失败；未解析的 token 渲染为空字符串并告警
func (t *Templater) Render(content model.Value, req *model.RequestContext) model.Value {
	switch content.Kind() {
	case model.KindString:
		s, _ := content.AsString()
		return t.renderScalar(s, req)
	case model.KindArray:
		items, _ := content.AsArray()
		out := make([]model.Value, len(items))
		for i, item := range items {
			out[i] = t.Render(item, req)
		}
		return model.Array(out...)
	case model.KindObject:
		fields, _ := content.AsObject()
		out := make(map[string]model.Value, len(fields))
		for k, item := range fields {
			out[k] = t.Render(item, req)
		}
		return model.Object(out)
	default:
		return content
	}
}

func (t *Templater) renderScalar(s string, req *model.RequestContext) model.Value {
	locs := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return model.String(s)
	}
	// 整个字符串恰好是一个 token 时保留原始结构
	if len(locs) == 1 && locs[0][0] == 0 && locs[0][1] == len(s) {
		scope, key := tokenAt(s, locs[0])
		v, ok := t.resolve(scope, key, req)
		if !ok {
			return model.String("")
		}
		return v
	}
	return model.String(t.interpolate(s, locs, req))
}

// RenderString 只做字符串插值，用于响应头
func (t *Templater) RenderString(s string, req *model.RequestContext) string {
	locs := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	return t.interpolate(s, locs, req)
}

func (t *Templater) RenderHeaders(headers map[string]string, req *model.RequestContext) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = t.RenderString(v, req)
	}
	return out
}

func (t *Templater) interpolate(s string, locs [][]int, req *model.RequestContext) string {
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(s[last:loc[0]])
		scope, key := tokenAt(s, loc)
		if v, ok := t.resolve(scope, key, req); ok {
			b.WriteString(v.Text())
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// tokenAt 取出匹配位置上的 scope 与 key，{timestamp}/{now} 的 key 为空
func tokenAt(s string, loc []int) (string, string) {
	if loc[2] >= 0 {
		return s[loc[2]:loc[3]], s[loc[4]:loc[5]]
	}
	return s[loc[6]:loc[7]], ""
}

func (t *Templater) resolve(scope, key string, req *model.RequestContext) (model.Value, bool) {
	v, ok := t.lookupToken(scope, key, req)
	if !ok && t.log != nil {
		t.log.Warnf("unresolved template token {%s.%s} for request %s %s", scope, key, req.Method, req.Path)
	}
	return v, ok
}

func (t *Templater) lookupToken(scope, key string, req *model.RequestContext) (model.Value, bool) {
	switch scope {
	case "timestamp":
		return model.Int(t.now().Unix()), true
	case "now":
		return model.String(t.now().Format(nowLayout)), true
	case "random":
		switch key {
		case "int":
			return model.Int(int64(t.randomInt(randomIntMin, randomIntMax))), true
		case "string":
			return model.String(t.randomString(randomStringLen)), true
		case "boolean":
			return model.Bool(t.rand.Float64() < 0.5), true
		}
	case "request":
		switch key {
		case "method":
			return model.String(req.Method), true
		case "path":
			return model.String(req.Path), true
		case "client_ip":
			return model.String(req.ClientIP), true
		case "id":
			return model.String(req.ID), req.ID != ""
		case "timestamp":
			return model.String(req.ReceivedAt.UTC().Format(time.RFC3339)), !req.ReceivedAt.IsZero()
		}
		if name, found := strings.CutPrefix(key, "headers."); found {
			if v, ok := req.Header(name); ok {
				return model.String(v), true
			}
		}
	case "path":
		if v, ok := req.PathParams[key]; ok {
			return model.String(v), true
		}
	case "query":
		if v, ok := req.FirstQuery(key); ok {
			return model.String(v), true
		}
	case "body":
		if v, ok := model.Lookup(req.Body, key); ok {
			return model.FromAny(v), true
		}
	}
	return model.Value{}, false
}

// randomInt 闭区间 [low, high]
func (t *Templater) randomInt(low, high int) int {
	n := low + int(t.rand.Float64()*float64(high-low+1))
	if n > high {
		n = high
	}
	return n
}

func (t *Templater) randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randomAlphabet[t.randomInt(0, len(randomAlphabet)-1)]
	}
	return string(b)
}
