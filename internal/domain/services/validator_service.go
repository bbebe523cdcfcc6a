package services

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	model "go_mock_resolver/internal/domain/model/mock_rule"
)

type ValidatorService struct {
	verifier model.TokenVerifier
}

func NewValidatorService(verifier model.TokenVerifier) *ValidatorService {
	return &ValidatorService{verifier: verifier}
}

// Validate 依次检查 必填 -> 类型 -> 范围 -> 枚举 -> JWT，遇到第一个失败即返回
func (v *ValidatorService) Validate(rule *model.MockRule, req *model.RequestContext) *model.ValidationError {
	spec := rule.Validator
	if spec == nil {
		return nil
	}

	for _, field := range spec.RequiredFields {
		if _, ok := model.Lookup(req.Body, field); !ok {
			return &model.ValidationError{Kind: model.MissingField, Field: field, Detail: fmt.Sprintf("field '%s' is required", field)}
		}
	}

	for _, field := range sortedFieldNames(spec.FieldTypes) {
		value, ok := model.Lookup(req.Body, field)
		if !ok {
			continue
		}
		want := spec.FieldTypes[field]
		if !matchesType(value, want) {
			return &model.ValidationError{
				Kind:   model.TypeMismatch,
				Field:  field,
				Detail: fmt.Sprintf("field '%s' must be %s, got %s", field, want, typeName(value)),
			}
		}
	}

	for _, field := range sortedFieldNames(spec.FieldRanges) {
		value, ok := model.Lookup(req.Body, field)
		if !ok {
			continue
		}
		bounds := spec.FieldRanges[field]
		n, isNum := toFloat(value)
		if !isNum {
			return &model.ValidationError{Kind: model.RangeViolation, Field: field, Detail: fmt.Sprintf("field '%s' is not numeric", field)}
		}
		if len(bounds) == 1 {
			if n < bounds[0] {
				return &model.ValidationError{
					Kind:   model.RangeViolation,
					Field:  field,
					Detail: fmt.Sprintf("field '%s' must be at least %g", field, bounds[0]),
				}
			}
			continue
		}
		if n < bounds[0] || n > bounds[1] {
			return &model.ValidationError{
				Kind:   model.RangeViolation,
				Field:  field,
				Detail: fmt.Sprintf("field '%s' must be between %g and %g", field, bounds[0], bounds[1]),
			}
		}
	}

	for _, field := range sortedFieldNames(spec.FieldEnums) {
		value, ok := model.Lookup(req.Body, field)
		if !ok {
			continue
		}
		allowed := spec.FieldEnums[field]
		got := model.FromAny(value)
		if !slices.ContainsFunc(allowed, got.Equal) {
			return &model.ValidationError{
				Kind:   model.RangeViolation,
				Field:  field,
				Detail: fmt.Sprintf("field '%s' must be one of %s", field, model.Array(allowed...).Text()),
			}
		}
	}

	if spec.RequireJWT {
		return v.checkToken(req)
	}
	return nil
}

func (v *ValidatorService) checkToken(req *model.RequestContext) *model.ValidationError {
	auth, _ := req.Header("Authorization")
	scheme, token, found := strings.Cut(strings.TrimSpace(auth), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return &model.ValidationError{Kind: model.InvalidToken, Field: "Authorization", Detail: "missing bearer token"}
	}
	if v.verifier == nil {
		return &model.ValidationError{Kind: model.InvalidToken, Field: "Authorization", Detail: "no token verifier configured"}
	}
	if err := v.verifier.Verify(token); err != nil {
		return &model.ValidationError{Kind: model.InvalidToken, Field: "Authorization", Detail: err.Error()}
	}
	return nil
}

// matchesType 严格匹配，不做类型转换；integer 与 number 区分
func matchesType(value any, want model.FieldType) bool {
	switch want {
	case model.FieldInteger:
		switch t := value.(type) {
		case int, int32, int64:
			return true
		case json.Number:
			return !strings.ContainsAny(t.String(), ".eE")
		}
		return false
	case model.FieldNumber:
		_, ok := toFloat(value)
		return ok
	case model.FieldString:
		_, ok := value.(string)
		return ok
	case model.FieldBoolean:
		_, ok := value.(bool)
		return ok
	case model.FieldArray:
		_, ok := value.([]any)
		return ok
	case model.FieldObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch t := value.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case int, int32, int64:
		return "integer"
	case float32, float64, json.Number:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

func sortedFieldNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
