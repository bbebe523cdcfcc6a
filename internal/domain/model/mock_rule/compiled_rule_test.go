package model

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReq(method, path string) *RequestContext {
	u, _ := url.Parse(path)
	return &RequestContext{
		Method:  method,
		Path:    u.Path,
		Query:   u.Query(),
		Headers: http.Header{},
	}
}

func TestCompileTemplatePath(t *testing.T) {
	rule := &MockRule{ID: "users", Match: MatchSpec{Path: "/api/users/{id}"}}
	compiled, err := rule.Compile()
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		match  bool
		params map[string]string
	}{
		{"captures id", "/api/users/123", true, map[string]string{"id": "123"}},
		{"extra segment", "/api/users/123/extra", false, nil},
		{"missing segment", "/api/users", false, nil},
		{"empty placeholder segment", "/api/users/", false, nil},
		{"literal mismatch", "/api/orders/1", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, ok := compiled.Evaluate(newReq("GET", tt.path))
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func TestCompileWildcardPath(t *testing.T) {
	rule := &MockRule{ID: "files", Match: MatchSpec{Path: "/static/{bucket}/*"}}
	compiled, err := rule.Compile()
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		match bool
	}{
		{"single trailing segment", "/static/img/logo.png", true},
		{"nested trailing segments", "/static/img/2024/01/logo.png", true},
		{"nothing after prefix", "/static/img", true},
		{"empty bucket", "/static//logo.png", false},
		{"prefix mismatch", "/assets/img/logo.png", false},
		{"too short", "/static", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, ok := compiled.Evaluate(newReq("GET", tt.path))
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, "img", params["bucket"])
			}
		})
	}

	plain, err := (&MockRule{ID: "plain", Match: MatchSpec{Path: "/static/{bucket}/{name}"}}).Compile()
	require.NoError(t, err)
	assert.Less(t, compiled.Specificity(), plain.Specificity())
	assert.Equal(t, ScorePathTemplate+ScoreLiteralSegment-ScoreWildcardPenalty, compiled.Specificity())
}

func TestCompileRegexPathNamedGroups(t *testing.T) {
	rule := &MockRule{ID: "orders", Match: MatchSpec{PathRegex: `/api/orders/(?P<order>\d+)`}}
	compiled, err := rule.Compile()
	require.NoError(t, err)

	params, ok := compiled.Evaluate(newReq("GET", "/api/orders/77"))
	require.True(t, ok)
	assert.Equal(t, "77", params["order"])

	_, ok = compiled.Evaluate(newReq("GET", "/api/orders/77/items"))
	assert.False(t, ok, "regex path is anchored")
}

func TestCompileSpecificity(t *testing.T) {
	rule := &MockRule{
		ID: "full",
		Match: MatchSpec{
			Path:    "/api/users/{id}",
			Methods: []string{"get"},
			Headers: map[string]StringMatcher{"X-Tenant": Exact("a")},
			Query:   map[string]StringMatcher{"page": Pattern(`^\d+$`)},
			Body:    map[string]Value{"user.role": String("admin")},
		},
	}
	compiled, err := rule.Compile()
	require.NoError(t, err)
	expected := ScoreMethod + ScorePathTemplate + 2*ScoreLiteralSegment + ScoreHeader + ScoreQueryParam + ScoreBody
	assert.Equal(t, expected, compiled.Specificity())

	regexRule := &MockRule{ID: "re", Match: MatchSpec{PathRegex: "/api/.*"}}
	compiled, err = regexRule.Compile()
	require.NoError(t, err)
	assert.Equal(t, ScorePathRegex, compiled.Specificity())
}

func TestCompilePredicates(t *testing.T) {
	rule := &MockRule{
		ID: "preds",
		Match: MatchSpec{
			Path:    "/api/items",
			Methods: []string{"POST"},
			Headers: map[string]StringMatcher{"x-env": OneOf("dev", "test")},
			Query:   map[string]StringMatcher{"q": Pattern("^ab")},
			Body:    map[string]Value{"item.count": Int(2)},
			Expr:    `method == "POST" && len(query["q"]) > 1`,
		},
	}
	compiled, err := rule.Compile()
	require.NoError(t, err)
	assert.Len(t, compiled.Predicates(), 6)

	req := newReq("POST", "/api/items?q=abc&q=zzz")
	req.Headers.Set("X-Env", "test")
	req.Body = map[string]any{"item": map[string]any{"count": int64(2)}}
	_, ok := compiled.Evaluate(req)
	assert.True(t, ok)

	req.Headers.Set("X-Env", "prod")
	_, ok = compiled.Evaluate(req)
	assert.False(t, ok, "header not in any_of")

	req.Headers.Set("X-Env", "dev")
	req.Body = map[string]any{"item": map[string]any{"count": 2.5}}
	_, ok = compiled.Evaluate(req)
	assert.False(t, ok, "body value differs")

	req.Body = []byte("raw")
	_, ok = compiled.Evaluate(req)
	assert.False(t, ok, "raw body never satisfies body matchers")
}

func TestCompileRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		rule MockRule
	}{
		{"missing id", MockRule{Match: MatchSpec{Path: "/a"}}},
		{"both paths", MockRule{ID: "x", Match: MatchSpec{Path: "/a", PathRegex: "/a"}}},
		{"no path", MockRule{ID: "x"}},
		{"bad regex path", MockRule{ID: "x", Match: MatchSpec{PathRegex: "/a/(["}}},
		{"bad header regex", MockRule{ID: "x", Match: MatchSpec{Path: "/a", Headers: map[string]StringMatcher{"h": Pattern("(")}}}},
		{"regex with any_of", MockRule{ID: "x", Match: MatchSpec{Path: "/a", Query: map[string]StringMatcher{"q": {Value: "a", Regex: true, AnyOf: []string{"b"}}}}}},
		{"duplicate placeholder", MockRule{ID: "x", Match: MatchSpec{Path: "/a/{id}/{id}"}}},
		{"partial placeholder", MockRule{ID: "x", Match: MatchSpec{Path: "/a/v{id}"}}},
		{"relative template", MockRule{ID: "x", Match: MatchSpec{Path: "a/b"}}},
		{"wildcard not last", MockRule{ID: "x", Match: MatchSpec{Path: "/a/*/b"}}},
		{"inverted delay range", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Response: ResponseSpec{DelayRange: []float64{2, 1}}}},
		{"negative delay range", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Response: ResponseSpec{DelayRange: []float64{-1, 1}}}},
		{"short delay range", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Response: ResponseSpec{DelayRange: []float64{1}}}},
		{"negative delay", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Response: ResponseSpec{Delay: -0.1}}},
		{"bad status", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Response: ResponseSpec{StatusCode: 42}}},
		{"unknown field type", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Validator: &ValidatorSpec{FieldTypes: map[string]FieldType{"a": "decimal"}}}},
		{"inverted field range", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Validator: &ValidatorSpec{FieldRanges: map[string][]float64{"age": {100, 18}}}}},
		{"long field range", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Validator: &ValidatorSpec{FieldRanges: map[string][]float64{"age": {1, 2, 3}}}}},
		{"empty field enum", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Validator: &ValidatorSpec{FieldEnums: map[string][]Value{"status": {}}}}},
		{"error probability above one", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Response: ResponseSpec{SimulateError: true, ErrorProbability: 1.5}}},
		{"unknown error type", MockRule{ID: "x", Match: MatchSpec{Path: "/a"}, Response: ResponseSpec{SimulateError: true, ErrorType: "disk_full"}}},
		{"bad expr", MockRule{ID: "x", Match: MatchSpec{Path: "/a", Expr: "method =="}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rule.Compile()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRuleConfigInvalid))
			var cfgErr *RuleConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestResponseSpecFaultDefaults(t *testing.T) {
	tests := []struct {
		name     string
		spec     ResponseSpec
		wantProb float64
		wantType FaultType
	}{
		{"disabled", ResponseSpec{ErrorProbability: 0.5}, 0, FaultServerError},
		{"enabled without probability", ResponseSpec{SimulateError: true}, 1, FaultServerError},
		{"explicit", ResponseSpec{SimulateError: true, ErrorProbability: 0.25, ErrorType: FaultTimeout}, 0.25, FaultTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantProb, tt.spec.FaultProbability())
			assert.Equal(t, tt.wantType, tt.spec.Fault())
		})
	}

	bounded := &MockRule{ID: "bounded", Match: MatchSpec{Path: "/a"}, Validator: &ValidatorSpec{
		FieldRanges: map[string][]float64{"age": {18}},
		FieldEnums:  map[string][]Value{"status": {String("active"), Int(1)}},
	}}
	_, err := bounded.Compile()
	assert.NoError(t, err)
	clone := bounded.Clone()
	clone.Validator.FieldEnums["status"][0] = String("changed")
	assert.True(t, String("active").Equal(bounded.Validator.FieldEnums["status"][0]))
}
