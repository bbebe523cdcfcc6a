package model

import (
	"context"
	"net/http"
	"time"
)

// RuleStore 规则持久化协作者，Registry 的内容由其镜像
type RuleStore interface {
	LoadAll(ctx context.Context) ([]*MockRule, error) // 按 Seq 升序
	SaveRule(ctx context.Context, rule *MockRule) error
	DeleteRule(ctx context.Context, ruleID string) error
}

// OutcomeRecorder 请求结果记录，实现方不能阻塞调用方
type OutcomeRecorder interface {
	Record(outcome Outcome)
}

// ProxyTransport 未命中时的上游转发能力，超时由实现方负责
type ProxyTransport interface {
	Forward(ctx context.Context, req *ProxyRequest) (*ProxyResponse, error)
}

// TokenVerifier JWT 校验能力，声明内容核心流程不关心
type TokenVerifier interface {
	Verify(token string) error
}

// LogSink 非致命告警输出，*logrus.Logger 满足该接口
type LogSink interface {
	Warnf(format string, args ...any)
}

// RandSource 延迟区间取值用的随机源
type RandSource interface {
	Float64() float64
}

type ProxyRequest struct {
	Method   string
	Path     string
	RawPath  string // 原始编码的路径，为空时按 Path 编码
	RawQuery string
	Header   http.Header
	Body     []byte
	Host     string // 原始 Host，仅用于 X-Forwarded-Host
	ClientIP string
}

type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// MockResponse 流水线最终产出
type MockResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RuleID     string
	Proxied    bool
	Delay      time.Duration
}

// Outcome 每个请求一条的结果记录
type Outcome struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
	RequestID     string    `gorm:"type:varchar(64)" json:"request_id"`
	Method        string    `gorm:"type:varchar(16)" json:"method"`
	Path          string    `gorm:"type:varchar(512)" json:"path"`
	MatchedRuleID *string   `gorm:"type:varchar(64);index" json:"matched_rule_id"`
	StatusCode    int       `json:"status_code"`
	LatencyMS     int64     `json:"latency_ms"`
	ClientIP      string    `gorm:"type:varchar(64)" json:"client_ip"`
	Proxied       bool      `json:"proxied"`
}

func (Outcome) TableName() string {
	return "request_outcomes"
}
