package model

import (
	"errors"
	"fmt"
)

var (
	// ErrRuleConfigInvalid 规则配置非法，注册时拒绝
	ErrRuleConfigInvalid = errors.New("rule config invalid")
	ErrDuplicateRule     = errors.New("rule already exists")
	ErrRuleNotFound      = errors.New("rule not found")
	ErrStoreDisabled     = errors.New("rule store is not configured") // memory 模式下没有持久化仓库
)

// RuleConfigError describes why a rule was refused at registration.
type RuleConfigError struct {
	RuleID string
	Field  string
	Reason string
}

func (e *RuleConfigError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("invalid rule config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid rule config [%s]: %s: %s", e.RuleID, e.Field, e.Reason)
}

func (e *RuleConfigError) Is(target error) bool {
	return target == ErrRuleConfigInvalid
}

func newConfigError(ruleID, field, format string, args ...any) *RuleConfigError {
	return &RuleConfigError{RuleID: ruleID, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidationKind 校验失败类型
type ValidationKind string

const (
	MissingField   ValidationKind = "MissingField"
	TypeMismatch   ValidationKind = "TypeMismatch"
	RangeViolation ValidationKind = "RangeViolation"
	InvalidToken   ValidationKind = "InvalidToken"
)

type ValidationError struct {
	Kind   ValidationKind
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s(%s): %s", e.Kind, e.Field, e.Detail)
}

// ProxyErrorKind 上游转发失败分类
type ProxyErrorKind string

const (
	ProxyTimeout          ProxyErrorKind = "timeout"
	ProxyConnection       ProxyErrorKind = "connection"
	ProxyCircuitOpen      ProxyErrorKind = "circuit_open"
	ProxyTransportFailure ProxyErrorKind = "transport"
)

// ProxyUpstreamError is a transport level failure talking to the upstream,
// never an upstream status code.
type ProxyUpstreamError struct {
	Kind ProxyErrorKind
	Err  error
}

func (e *ProxyUpstreamError) Error() string {
	return fmt.Sprintf("proxy upstream %s: %v", e.Kind, e.Err)
}

func (e *ProxyUpstreamError) Unwrap() error { return e.Err }
