package model

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		raw         string
		check       func(t *testing.T, body any)
	}{
		{
			name:        "json keeps integer and float apart",
			contentType: "application/json; charset=utf-8",
			raw:         `{"age": 18, "score": 1.5}`,
			check: func(t *testing.T, body any) {
				m, ok := body.(map[string]any)
				require.True(t, ok)
				assert.IsType(t, int64(0), m["age"])
				assert.IsType(t, float64(0), m["score"])
			},
		},
		{
			name:        "form takes first value",
			contentType: "application/x-www-form-urlencoded",
			raw:         "name=a&name=b&email=x%40y.z",
			check: func(t *testing.T, body any) {
				assert.Equal(t, map[string]any{"name": "a", "email": "x@y.z"}, body)
			},
		},
		{
			name:        "broken json stays raw",
			contentType: "application/json",
			raw:         `{"age":`,
			check: func(t *testing.T, body any) {
				assert.Equal(t, []byte(`{"age":`), body)
			},
		},
		{
			name:        "plain text stays raw",
			contentType: "text/plain",
			raw:         "hello",
			check: func(t *testing.T, body any) {
				assert.Equal(t, []byte("hello"), body)
			},
		},
		{
			name:        "empty body",
			contentType: "application/json",
			raw:         "",
			check: func(t *testing.T, body any) {
				assert.Nil(t, body)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ParseBody(tt.contentType, []byte(tt.raw)))
		})
	}
}

func TestLookup(t *testing.T) {
	body := ParseBody("application/json", []byte(`{"user":{"name":"amy","roles":["admin","dev"]},"n":3}`))

	v, ok := Lookup(body, "user.name")
	require.True(t, ok)
	assert.Equal(t, "amy", v)

	v, ok = Lookup(body, "user.roles.1")
	require.True(t, ok)
	assert.Equal(t, "dev", v)

	v, ok = Lookup(body, "n")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	_, ok = Lookup(body, "user.email")
	assert.False(t, ok)

	_, ok = Lookup([]byte("raw"), "user")
	assert.False(t, ok)
}

func TestNewRequestContextKeepsEscapedPath(t *testing.T) {
	r := httptest.NewRequest("GET", "/files/a%2Fb/c%20d", nil)
	rc, err := NewRequestContext(r, "req-2", 0)
	require.NoError(t, err)
	assert.Equal(t, "/files/a/b/c d", rc.Path)
	assert.Equal(t, "/files/a%2Fb/c%20d", rc.RawPath)
}

func TestNewRequestContext(t *testing.T) {
	r := httptest.NewRequest("post", "/api/users?page=2&page=3", strings.NewReader(`{"name":"amy"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")

	rc, err := NewRequestContext(r, "req-1", 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "POST", rc.Method)
	assert.Equal(t, "/api/users", rc.Path)
	assert.Equal(t, "/api/users", rc.RawPath)
	assert.Equal(t, "10.0.0.9", rc.ClientIP)

	page, ok := rc.FirstQuery("page")
	assert.True(t, ok)
	assert.Equal(t, "2", page)
	assert.Equal(t, []string{"2", "3"}, rc.Query["page"])

	name, ok := Lookup(rc.Body, "name")
	assert.True(t, ok)
	assert.Equal(t, "amy", name)
	assert.Equal(t, `{"name":"amy"}`, string(rc.RawBody))
}
