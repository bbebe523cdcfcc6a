package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Mock规则聚合根（核心领域对象）
type MockRule struct {
	ID           string         `gorm:"primaryKey;type:varchar(64)" json:"id" yaml:"id"`
	Name         string         `gorm:"type:varchar(100)" json:"name" yaml:"name"`
	Enabled      bool           `gorm:"index" json:"enabled" yaml:"enabled"`
	Match        MatchSpec      `gorm:"column:match_spec;type:text;serializer:json" json:"match" yaml:"match"`          // 匹配条件
	Response     ResponseSpec   `gorm:"column:response_spec;type:text;serializer:json" json:"response" yaml:"response"` // 响应配置
	Validator    *ValidatorSpec `gorm:"column:validator_spec;type:text;serializer:json" json:"validator,omitempty" yaml:"validator,omitempty"`
	Tags         []string       `gorm:"type:text;serializer:json" json:"tags,omitempty" yaml:"tags,omitempty"`
	Seq          int64          `gorm:"index" json:"seq" yaml:"seq,omitempty"`                           // 注册序号，仅用于同分排序
	L1MatchIndex string         `gorm:"type:varchar(255);index:idx_l1" json:"l1_match_index,omitempty" yaml:"-"` // 标准化后的路径（如 /api/user/*）
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at,omitempty"`
}

// MatchSpec 匹配条件（值对象）
type MatchSpec struct {
	Path      string                   `json:"path,omitempty" yaml:"path,omitempty"`             // 路径模板 /api/users/{id}
	PathRegex string                   `json:"path_regex,omitempty" yaml:"path_regex,omitempty"` // 与 Path 互斥
	Methods   []string                 `json:"methods,omitempty" yaml:"methods,omitempty"`
	Headers   map[string]StringMatcher `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query     map[string]StringMatcher `json:"query,omitempty" yaml:"query,omitempty"`
	Body      map[string]Value         `json:"body,omitempty" yaml:"body,omitempty"` // dotted field -> expected value
	Expr      string                   `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// StringMatcher matches a header or query value exactly, as a regex, or
// against a list of allowed values. A bare string decodes to an exact matcher.
type StringMatcher struct {
	Value string   `json:"value,omitempty" yaml:"value,omitempty"`
	Regex bool     `json:"regex,omitempty" yaml:"regex,omitempty"`
	AnyOf []string `json:"any_of,omitempty" yaml:"any_of,omitempty"`
}

func Exact(v string) StringMatcher { return StringMatcher{Value: v} }

func Pattern(p string) StringMatcher { return StringMatcher{Value: p, Regex: true} }

func OneOf(values ...string) StringMatcher { return StringMatcher{AnyOf: values} }

func (m StringMatcher) MarshalJSON() ([]byte, error) {
	if !m.Regex && len(m.AnyOf) == 0 {
		return json.Marshal(m.Value)
	}
	type alias StringMatcher
	return json.Marshal(alias(m))
}

func (m *StringMatcher) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = StringMatcher{Value: s}
		return nil
	}
	type alias StringMatcher
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("matcher must be a string or an object: %w", err)
	}
	*m = StringMatcher(a)
	return nil
}

func (m *StringMatcher) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*m = StringMatcher{Value: node.Value}
		return nil
	}
	type alias StringMatcher
	var a alias
	if err := node.Decode(&a); err != nil {
		return fmt.Errorf("matcher must be a string or a mapping: %w", err)
	}
	*m = StringMatcher(a)
	return nil
}

func (m StringMatcher) MarshalYAML() (any, error) {
	if !m.Regex && len(m.AnyOf) == 0 {
		return m.Value, nil
	}
	type alias StringMatcher
	return alias(m), nil
}

// ResponseSpec 响应配置
type ResponseSpec struct {
	StatusCode  int               `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	ContentType string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Content     Value             `json:"content" yaml:"content"`
	Delay       float64           `json:"delay,omitempty" yaml:"delay,omitempty"`             // 秒
	DelayRange  []float64         `json:"delay_range,omitempty" yaml:"delay_range,omitempty"` // [low, high] 秒

	// 故障注入：按概率把正常响应替换为 ErrorType 对应的错误
	SimulateError    bool      `json:"simulate_error,omitempty" yaml:"simulate_error,omitempty"`
	ErrorProbability float64   `json:"error_probability,omitempty" yaml:"error_probability,omitempty"` // 0 视为 1
	ErrorType        FaultType `json:"error_type,omitempty" yaml:"error_type,omitempty"`
}

const (
	DefaultStatusCode  = 200
	DefaultContentType = "application/json"
)

func (r *ResponseSpec) Status() int {
	if r.StatusCode == 0 {
		return DefaultStatusCode
	}
	return r.StatusCode
}

// FaultProbability simulate_error 开启且未配置概率时总是触发
func (r *ResponseSpec) FaultProbability() float64 {
	if !r.SimulateError {
		return 0
	}
	if r.ErrorProbability == 0 {
		return 1
	}
	return r.ErrorProbability
}

func (r *ResponseSpec) Fault() FaultType {
	if r.ErrorType == "" {
		return FaultServerError
	}
	return r.ErrorType
}

func (r *ResponseSpec) MediaType() string {
	if r.ContentType == "" {
		return DefaultContentType
	}
	return r.ContentType
}

// ValidatorSpec 请求校验配置
type ValidatorSpec struct {
	RequiredFields []string             `json:"required_fields,omitempty" yaml:"required_fields,omitempty"`
	FieldTypes     map[string]FieldType `json:"field_types,omitempty" yaml:"field_types,omitempty"`
	FieldRanges    map[string][]float64 `json:"field_ranges,omitempty" yaml:"field_ranges,omitempty"` // [min, max] 或 [min]
	FieldEnums     map[string][]Value   `json:"field_enums,omitempty" yaml:"field_enums,omitempty"`
	RequireJWT     bool                 `json:"require_jwt,omitempty" yaml:"require_jwt,omitempty"`
	ErrorResponse  *ResponseSpec        `json:"error_response,omitempty" yaml:"error_response,omitempty"`
}

// RuleFilter 定义规则查询的过滤器
type RuleFilter struct {
	RuleID       *string // 规则 ID 精确匹配
	Tag          *string // 规则包含该标签
	IsEnabled    *bool   // 是否启用状态精确匹配
	PathContains *string // Path 包含指定字符串 (模糊匹配)
	L1MatchIndex *string // L1MatchIndex 精确匹配
}

// Accept 内存侧过滤，与数据库侧 where 条件保持一致
func (f *RuleFilter) Accept(r *MockRule) bool {
	if f == nil {
		return true
	}
	if f.RuleID != nil && r.ID != *f.RuleID {
		return false
	}
	if f.IsEnabled != nil && r.Enabled != *f.IsEnabled {
		return false
	}
	if f.Tag != nil && !r.HasTag(*f.Tag) {
		return false
	}
	if f.PathContains != nil && !containsAny(*f.PathContains, r.Match.Path, r.Match.PathRegex) {
		return false
	}
	if f.L1MatchIndex != nil && BuildL1MatchIndexKeyFromRule(r) != *f.L1MatchIndex {
		return false
	}
	return true
}

func (m *MockRule) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone 深拷贝，Value 本身不可变可以共享
func (m *MockRule) Clone() *MockRule {
	if m == nil {
		return nil
	}
	c := *m
	c.Match = m.Match.clone()
	c.Response = m.Response.clone()
	if m.Validator != nil {
		v := *m.Validator
		v.RequiredFields = append([]string(nil), m.Validator.RequiredFields...)
		if m.Validator.FieldTypes != nil {
			v.FieldTypes = make(map[string]FieldType, len(m.Validator.FieldTypes))
			for k, t := range m.Validator.FieldTypes {
				v.FieldTypes[k] = t
			}
		}
		if m.Validator.FieldRanges != nil {
			v.FieldRanges = make(map[string][]float64, len(m.Validator.FieldRanges))
			for k, r := range m.Validator.FieldRanges {
				v.FieldRanges[k] = append([]float64(nil), r...)
			}
		}
		if m.Validator.FieldEnums != nil {
			v.FieldEnums = make(map[string][]Value, len(m.Validator.FieldEnums))
			for k, e := range m.Validator.FieldEnums {
				v.FieldEnums[k] = append([]Value(nil), e...)
			}
		}
		if m.Validator.ErrorResponse != nil {
			er := m.Validator.ErrorResponse.clone()
			v.ErrorResponse = &er
		}
		c.Validator = &v
	}
	c.Tags = append([]string(nil), m.Tags...)
	return &c
}

func (s MatchSpec) clone() MatchSpec {
	c := s
	c.Methods = append([]string(nil), s.Methods...)
	c.Headers = cloneMatchers(s.Headers)
	c.Query = cloneMatchers(s.Query)
	if s.Body != nil {
		c.Body = make(map[string]Value, len(s.Body))
		for k, v := range s.Body {
			c.Body[k] = v
		}
	}
	return c
}

func cloneMatchers(in map[string]StringMatcher) map[string]StringMatcher {
	if in == nil {
		return nil
	}
	out := make(map[string]StringMatcher, len(in))
	for k, m := range in {
		m.AnyOf = append([]string(nil), m.AnyOf...)
		out[k] = m
	}
	return out
}

func (r ResponseSpec) clone() ResponseSpec {
	c := r
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	c.DelayRange = append([]float64(nil), r.DelayRange...)
	return c
}

// IndexKeys 一个规则按方法拆成多个 L1 索引键
func (m *MockRule) IndexKeys() []string {
	path := m.Match.Path
	if path == "" {
		path = m.Match.PathRegex
	}
	if len(m.Match.Methods) == 0 {
		return []string{BuildL1MatchIndexKey(ProtocolHTTP, "", path)}
	}
	keys := make([]string, 0, len(m.Match.Methods))
	for _, method := range m.Match.Methods {
		keys = append(keys, BuildL1MatchIndexKey(ProtocolHTTP, method, path))
	}
	sort.Strings(keys)
	return keys
}

func (m *MockRule) BeforeSave(tx *gorm.DB) (err error) {
	m.L1MatchIndex = BuildL1MatchIndexKeyFromRule(m)
	return nil
}
