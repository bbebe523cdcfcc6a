package model

import (
	"sort"
	"strings"
)

// CompiledRule 注册时一次性编译的规则，发布后只读
type CompiledRule struct {
	Rule       *MockRule
	predicates []Predicate
	score      int
}

func (c *CompiledRule) ID() string { return c.Rule.ID }

func (c *CompiledRule) Seq() int64 { return c.Rule.Seq }

func (c *CompiledRule) Specificity() int { return c.score }

func (c *CompiledRule) Predicates() []Predicate { return c.predicates }

// Evaluate 按顺序执行谓词，遇到第一个失败立即返回
func (c *CompiledRule) Evaluate(req *RequestContext) (map[string]string, bool) {
	params := make(map[string]string)
	for _, p := range c.predicates {
		if !p.Evaluate(req, params) {
			return nil, false
		}
	}
	return params, true
}

// Compile 校验规则配置并构建谓词列表，非法配置返回 *RuleConfigError
func (m *MockRule) Compile() (*CompiledRule, error) {
	if strings.TrimSpace(m.ID) == "" {
		return nil, newConfigError("", "id", "rule id is required")
	}
	spec := m.Match
	preds := make([]Predicate, 0, 4)

	if len(spec.Methods) > 0 {
		set := make(map[string]struct{}, len(spec.Methods))
		for _, method := range spec.Methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if method == "" {
				return nil, newConfigError(m.ID, "match.methods", "empty method")
			}
			set[method] = struct{}{}
		}
		preds = append(preds, &methodPredicate{methods: set})
	}

	switch {
	case spec.Path != "" && spec.PathRegex != "":
		return nil, newConfigError(m.ID, "match.path", "path template and path regex are mutually exclusive")
	case spec.Path != "":
		p, err := compileTemplate(m.ID, spec.Path)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	case spec.PathRegex != "":
		p, err := compileRegexPath(m.ID, spec.PathRegex)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	default:
		return nil, newConfigError(m.ID, "match.path", "either path or path_regex is required")
	}

	for _, name := range sortedKeys(spec.Headers) {
		cm, err := compileMatcher(m.ID, "match.headers."+name, spec.Headers[name])
		if err != nil {
			return nil, err
		}
		preds = append(preds, &headerPredicate{name: name, matcher: cm})
	}
	for _, name := range sortedKeys(spec.Query) {
		cm, err := compileMatcher(m.ID, "match.query."+name, spec.Query[name])
		if err != nil {
			return nil, err
		}
		preds = append(preds, &queryPredicate{name: name, matcher: cm})
	}
	bodyFields := make([]string, 0, len(spec.Body))
	for field := range spec.Body {
		bodyFields = append(bodyFields, field)
	}
	sort.Strings(bodyFields)
	for _, field := range bodyFields {
		if field == "" || strings.HasPrefix(field, ".") || strings.HasSuffix(field, ".") {
			return nil, newConfigError(m.ID, "match.body", "invalid dotted field %q", field)
		}
		preds = append(preds, &bodyPredicate{field: field, path: FieldPath(field), expected: spec.Body[field]})
	}
	if strings.TrimSpace(spec.Expr) != "" {
		p, err := compileExpr(m.ID, spec.Expr)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	if err := validateResponse(m.ID, "response", &m.Response); err != nil {
		return nil, err
	}
	if m.Validator != nil {
		if err := validateValidator(m.ID, m.Validator); err != nil {
			return nil, err
		}
	}

	score := 0
	for _, p := range preds {
		score += p.Specificity()
	}
	return &CompiledRule{Rule: m, predicates: preds, score: score}, nil
}

func validateResponse(ruleID, field string, r *ResponseSpec) error {
	if r.StatusCode != 0 && (r.StatusCode < 100 || r.StatusCode > 599) {
		return newConfigError(ruleID, field+".status_code", "status code %d out of range", r.StatusCode)
	}
	if r.Delay < 0 {
		return newConfigError(ruleID, field+".delay", "delay must not be negative")
	}
	if r.DelayRange != nil {
		if len(r.DelayRange) != 2 {
			return newConfigError(ruleID, field+".delay_range", "delay range must be [low, high]")
		}
		low, high := r.DelayRange[0], r.DelayRange[1]
		if low < 0 || high < 0 {
			return newConfigError(ruleID, field+".delay_range", "delay range bounds must not be negative")
		}
		if low > high {
			return newConfigError(ruleID, field+".delay_range", "inverted delay range [%g, %g]", low, high)
		}
	}
	if r.ErrorProbability < 0 || r.ErrorProbability > 1 {
		return newConfigError(ruleID, field+".error_probability", "probability %g must be within [0, 1]", r.ErrorProbability)
	}
	if r.ErrorType != "" && !r.ErrorType.IsValid() {
		return newConfigError(ruleID, field+".error_type", "unknown error type %q", r.ErrorType)
	}
	return nil
}

func validateValidator(ruleID string, v *ValidatorSpec) error {
	for _, f := range v.RequiredFields {
		if strings.TrimSpace(f) == "" {
			return newConfigError(ruleID, "validator.required_fields", "empty field name")
		}
	}
	for f, t := range v.FieldTypes {
		if !t.IsValid() {
			return newConfigError(ruleID, "validator.field_types."+f, "unknown type %q", t)
		}
	}
	for f, r := range v.FieldRanges {
		switch len(r) {
		case 1:
		case 2:
			if r[0] > r[1] {
				return newConfigError(ruleID, "validator.field_ranges."+f, "inverted range [%g, %g]", r[0], r[1])
			}
		default:
			return newConfigError(ruleID, "validator.field_ranges."+f, "range must be [min, max] or [min]")
		}
	}
	for f, e := range v.FieldEnums {
		if len(e) == 0 {
			return newConfigError(ruleID, "validator.field_enums."+f, "enum must list at least one value")
		}
	}
	if v.ErrorResponse != nil {
		return validateResponse(ruleID, "validator.error_response", v.ErrorResponse)
	}
	return nil
}

func sortedKeys(m map[string]StringMatcher) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MatchResult 单次请求的匹配结果，响应生成后即丢弃
type MatchResult struct {
	Rule       *CompiledRule
	PathParams map[string]string
	Score      int
}
