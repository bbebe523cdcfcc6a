package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/jp"
)

// Predicate 单个匹配条件：是否满足 + 贡献多少特异度
type Predicate interface {
	Name() string
	Evaluate(req *RequestContext, params map[string]string) bool
	Specificity() int
}

type methodPredicate struct {
	methods map[string]struct{}
}

func (p *methodPredicate) Name() string { return PredicateMethod }

func (p *methodPredicate) Evaluate(req *RequestContext, _ map[string]string) bool {
	_, ok := p.methods[strings.ToUpper(req.Method)]
	return ok
}

func (p *methodPredicate) Specificity() int { return ScoreMethod }

type pathSegment struct {
	literal string
	param   string // 非空表示占位符
}

type templatePathPredicate struct {
	segments []pathSegment
	literals int
	wildcard bool // 末尾 *，吞掉剩余的零个或多个段
}

func (p *templatePathPredicate) Name() string { return PredicatePath }

func (p *templatePathPredicate) Evaluate(req *RequestContext, params map[string]string) bool {
	parts := strings.Split(req.Path, "/")
	if p.wildcard {
		if len(parts) < len(p.segments) {
			return false
		}
	} else if len(parts) != len(p.segments) {
		return false
	}
	for i, seg := range p.segments {
		if seg.param != "" {
			// 占位符不接受空段，/api/users/ 不匹配 /api/users/{id}
			if parts[i] == "" {
				return false
			}
			continue
		}
		if parts[i] != seg.literal {
			return false
		}
	}
	// 全部字面量通过后再写入参数，失败时不留下半截结果
	for i, seg := range p.segments {
		if seg.param != "" {
			params[seg.param] = parts[i]
		}
	}
	return true
}

func (p *templatePathPredicate) Specificity() int {
	score := ScorePathTemplate + ScoreLiteralSegment*p.literals
	if p.wildcard {
		score -= ScoreWildcardPenalty
	}
	return score
}

type regexPathPredicate struct {
	re *regexp.Regexp
}

func (p *regexPathPredicate) Name() string { return PredicatePath }

func (p *regexPathPredicate) Evaluate(req *RequestContext, params map[string]string) bool {
	m := p.re.FindStringSubmatch(req.Path)
	if m == nil {
		return false
	}
	for i, name := range p.re.SubexpNames() {
		if name != "" && i < len(m) {
			params[name] = m[i]
		}
	}
	return true
}

func (p *regexPathPredicate) Specificity() int { return ScorePathRegex }

type compiledMatcher struct {
	exact string
	re    *regexp.Regexp
	anyOf map[string]struct{}
}

func (m *compiledMatcher) match(s string) bool {
	switch {
	case m.re != nil:
		return m.re.MatchString(s)
	case m.anyOf != nil:
		_, ok := m.anyOf[s]
		return ok
	default:
		return s == m.exact
	}
}

func compileMatcher(ruleID, field string, sm StringMatcher) (*compiledMatcher, error) {
	if sm.Regex && len(sm.AnyOf) > 0 {
		return nil, newConfigError(ruleID, field, "regex and any_of are mutually exclusive")
	}
	if sm.Regex {
		re, err := regexp.Compile(sm.Value)
		if err != nil {
			return nil, newConfigError(ruleID, field, "malformed regex %q: %v", sm.Value, err)
		}
		return &compiledMatcher{re: re}, nil
	}
	if len(sm.AnyOf) > 0 {
		set := make(map[string]struct{}, len(sm.AnyOf))
		for _, v := range sm.AnyOf {
			set[v] = struct{}{}
		}
		return &compiledMatcher{anyOf: set}, nil
	}
	return &compiledMatcher{exact: sm.Value}, nil
}

type headerPredicate struct {
	name    string
	matcher *compiledMatcher
}

func (p *headerPredicate) Name() string { return PredicateHeader }

func (p *headerPredicate) Evaluate(req *RequestContext, _ map[string]string) bool {
	v, ok := req.Header(p.name)
	return ok && p.matcher.match(v)
}

func (p *headerPredicate) Specificity() int { return ScoreHeader }

type queryPredicate struct {
	name    string
	matcher *compiledMatcher
}

func (p *queryPredicate) Name() string { return PredicateQuery }

func (p *queryPredicate) Evaluate(req *RequestContext, _ map[string]string) bool {
	v, ok := req.FirstQuery(p.name)
	return ok && p.matcher.match(v)
}

func (p *queryPredicate) Specificity() int { return ScoreQueryParam }

type bodyPredicate struct {
	field    string
	path     jp.Expr
	expected Value
}

func (p *bodyPredicate) Name() string { return PredicateBody }

func (p *bodyPredicate) Evaluate(req *RequestContext, _ map[string]string) bool {
	switch req.Body.(type) {
	case map[string]any, []any:
	default:
		return false
	}
	got, ok := LookupPath(req.Body, p.path)
	if !ok {
		return false
	}
	return FromAny(got).Equal(p.expected)
}

func (p *bodyPredicate) Specificity() int { return ScoreBody }

// exprEnv expr 表达式可见的请求视图
type exprEnv struct {
	Method  string            `expr:"method"`
	Path    string            `expr:"path"`
	Headers map[string]string `expr:"headers"`
	Query   map[string]string `expr:"query"`
	Params  map[string]string `expr:"params"`
	Body    any               `expr:"body"`
}

type exprPredicate struct {
	source  string
	program *vm.Program
}

func (p *exprPredicate) Name() string { return PredicateExpr }

func (p *exprPredicate) Evaluate(req *RequestContext, params map[string]string) bool {
	env := exprEnv{
		Method:  req.Method,
		Path:    req.Path,
		Headers: make(map[string]string, len(req.Headers)),
		Query:   make(map[string]string, len(req.Query)),
		Params:  params,
		Body:    req.Body,
	}
	for k, v := range req.Headers {
		if len(v) > 0 {
			env.Headers[strings.ToLower(k)] = v[0]
		}
	}
	for k, v := range req.Query {
		if len(v) > 0 {
			env.Query[k] = v[0]
		}
	}
	out, err := expr.Run(p.program, env)
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (p *exprPredicate) Specificity() int { return ScoreExpr }

func compileExpr(ruleID, source string) (*exprPredicate, error) {
	program, err := expr.Compile(source, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return nil, newConfigError(ruleID, "match.expr", "%v", err)
	}
	return &exprPredicate{source: source, program: program}, nil
}

var placeholderName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func compileTemplate(ruleID, pattern string) (*templatePathPredicate, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, newConfigError(ruleID, "match.path", "path template must start with '/': %q", pattern)
	}
	parts := strings.Split(pattern, "/")
	p := &templatePathPredicate{segments: make([]pathSegment, 0, len(parts))}
	seen := make(map[string]struct{})
	for i, part := range parts {
		if part == "*" {
			if i != len(parts)-1 {
				return nil, newConfigError(ruleID, "match.path", "wildcard '*' must be the final segment: %q", pattern)
			}
			p.wildcard = true
			continue
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) >= 2 {
			name := part[1 : len(part)-1]
			if !placeholderName.MatchString(name) {
				return nil, newConfigError(ruleID, "match.path", "invalid placeholder %q", part)
			}
			if _, dup := seen[name]; dup {
				return nil, newConfigError(ruleID, "match.path", "duplicate placeholder %q", name)
			}
			seen[name] = struct{}{}
			p.segments = append(p.segments, pathSegment{param: name})
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return nil, newConfigError(ruleID, "match.path", "placeholder must span a whole segment: %q", part)
		}
		p.segments = append(p.segments, pathSegment{literal: part})
		if part != "" {
			p.literals++
		}
	}
	return p, nil
}

func compileRegexPath(ruleID, pattern string) (*regexPathPredicate, error) {
	re, err := regexp.Compile(fmt.Sprintf("^(?:%s)$", pattern))
	if err != nil {
		return nil, newConfigError(ruleID, "match.path_regex", "malformed regex %q: %v", pattern, err)
	}
	return &regexPathPredicate{re: re}, nil
}
