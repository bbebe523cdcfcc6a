package services

import (
	"errors"
	"testing"

	model "go_mock_resolver/internal/domain/model/mock_rule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	valid string
}

func (s stubVerifier) Verify(token string) error {
	if token != s.valid {
		return errors.New("signature is invalid")
	}
	return nil
}

func jsonBody(t *testing.T, raw string) any {
	t.Helper()
	body := model.ParseBody("application/json", []byte(raw))
	_, isRaw := body.([]byte)
	require.False(t, isRaw, "test body must be valid json")
	return body
}

func TestValidateRequiredFields(t *testing.T) {
	v := NewValidatorService(nil)
	r := &model.MockRule{Validator: &model.ValidatorSpec{RequiredFields: []string{"name", "email"}}}

	verr := v.Validate(r, newRequest("POST", "/u", jsonBody(t, `{"name":"a"}`)))
	require.NotNil(t, verr)
	assert.Equal(t, model.MissingField, verr.Kind)
	assert.Equal(t, "email", verr.Field)

	assert.Nil(t, v.Validate(r, newRequest("POST", "/u", jsonBody(t, `{"name":"a","email":"b"}`))))

	verr = v.Validate(r, newRequest("POST", "/u", []byte("not json")))
	require.NotNil(t, verr)
	assert.Equal(t, "name", verr.Field, "first missing field in list order")
}

func TestValidateFieldRangesInclusive(t *testing.T) {
	v := NewValidatorService(nil)
	r := &model.MockRule{Validator: &model.ValidatorSpec{FieldRanges: map[string][]float64{"age": {18, 100}}}}

	tests := []struct {
		body string
		ok   bool
	}{
		{`{"age":17}`, false},
		{`{"age":18}`, true},
		{`{"age":100}`, true},
		{`{"age":100.5}`, false},
		{`{"age":"20"}`, false},
		{`{}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			verr := v.Validate(r, newRequest("POST", "/u", jsonBody(t, tt.body)))
			if tt.ok {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			assert.Equal(t, model.RangeViolation, verr.Kind)
			assert.Equal(t, "age", verr.Field)
		})
	}
}

func TestValidateMinimumAndEnums(t *testing.T) {
	v := NewValidatorService(nil)
	r := &model.MockRule{Validator: &model.ValidatorSpec{
		FieldRanges: map[string][]float64{"age": {18}},
		FieldEnums: map[string][]model.Value{
			"status": {model.String("active"), model.String("inactive")},
			"level":  {model.Int(1), model.Int(2)},
		},
	}}

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"all valid", `{"age":99,"status":"active","level":2}`, ""},
		{"minimum only has no upper bound", `{"age":1000}`, ""},
		{"below minimum", `{"age":17}`, "age"},
		{"enum miss", `{"status":"deleted"}`, "status"},
		{"enum compares numbers by value", `{"level":2.0}`, ""},
		{"enum is type strict", `{"level":"1"}`, "level"},
		{"absent enum field is skipped", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := v.Validate(r, newRequest("POST", "/u", jsonBody(t, tt.body)))
			if tt.field == "" {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			assert.Equal(t, model.RangeViolation, verr.Kind)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	verr := v.Validate(r, newRequest("POST", "/u", jsonBody(t, `{"status":"x"}`)))
	require.NotNil(t, verr)
	assert.Equal(t, `field 'status' must be one of ["active","inactive"]`, verr.Detail)
}

func TestValidateFieldTypes(t *testing.T) {
	v := NewValidatorService(nil)
	tests := []struct {
		name  string
		typ   model.FieldType
		body  string
		valid bool
	}{
		{"integer ok", model.FieldInteger, `{"f":3}`, true},
		{"fraction is not integer", model.FieldInteger, `{"f":3.0}`, false},
		{"exponent is not integer", model.FieldInteger, `{"f":1e3}`, false},
		{"integer is a number", model.FieldNumber, `{"f":3}`, true},
		{"float is a number", model.FieldNumber, `{"f":3.25}`, true},
		{"numeric string is not a number", model.FieldNumber, `{"f":"3"}`, false},
		{"string", model.FieldString, `{"f":"x"}`, true},
		{"boolean", model.FieldBoolean, `{"f":false}`, true},
		{"boolean string", model.FieldBoolean, `{"f":"true"}`, false},
		{"array", model.FieldArray, `{"f":[1]}`, true},
		{"object", model.FieldObject, `{"f":{"a":1}}`, true},
		{"object vs array", model.FieldObject, `{"f":[]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &model.MockRule{Validator: &model.ValidatorSpec{FieldTypes: map[string]model.FieldType{"f": tt.typ}}}
			verr := v.Validate(r, newRequest("POST", "/t", jsonBody(t, tt.body)))
			if tt.valid {
				assert.Nil(t, verr)
				return
			}
			require.NotNil(t, verr)
			assert.Equal(t, model.TypeMismatch, verr.Kind)
		})
	}
}

func TestValidateFailFastOrder(t *testing.T) {
	v := NewValidatorService(stubVerifier{valid: "good"})
	r := &model.MockRule{Validator: &model.ValidatorSpec{
		RequiredFields: []string{"name"},
		FieldTypes:     map[string]model.FieldType{"age": model.FieldInteger},
		FieldRanges:    map[string][]float64{"age": {0, 10}},
		RequireJWT:     true,
	}}

	// 缺字段优先于类型错误
	verr := v.Validate(r, newRequest("POST", "/x", jsonBody(t, `{"age":"old"}`)))
	require.NotNil(t, verr)
	assert.Equal(t, model.MissingField, verr.Kind)

	// 类型错误优先于范围
	verr = v.Validate(r, newRequest("POST", "/x", jsonBody(t, `{"name":"n","age":99.5}`)))
	require.NotNil(t, verr)
	assert.Equal(t, model.TypeMismatch, verr.Kind)

	// 范围优先于 JWT
	verr = v.Validate(r, newRequest("POST", "/x", jsonBody(t, `{"name":"n","age":99}`)))
	require.NotNil(t, verr)
	assert.Equal(t, model.RangeViolation, verr.Kind)

	req := newRequest("POST", "/x", jsonBody(t, `{"name":"n","age":9}`))
	verr = v.Validate(r, req)
	require.NotNil(t, verr)
	assert.Equal(t, model.InvalidToken, verr.Kind)

	req.Headers.Set("Authorization", "Bearer bad")
	verr = v.Validate(r, req)
	require.NotNil(t, verr)
	assert.Equal(t, model.InvalidToken, verr.Kind)

	req.Headers.Set("Authorization", "Basic good")
	assert.NotNil(t, v.Validate(r, req))

	req.Headers.Set("Authorization", "bearer good")
	assert.Nil(t, v.Validate(r, req))
}

func TestValidateWithoutSpec(t *testing.T) {
	v := NewValidatorService(nil)
	assert.Nil(t, v.Validate(&model.MockRule{}, newRequest("GET", "/", nil)))
}
