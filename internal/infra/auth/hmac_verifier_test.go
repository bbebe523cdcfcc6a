package auth

import (
	"testing"
	"time"

	configs "go_mock_resolver/internal/infra/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestHMACVerifier(t *testing.T) {
	secret := []byte("test-secret")
	v := NewHMACVerifier(string(secret))
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"sub": "u1", "exp": future}), false},
		{"no claims", sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{}), false},
		{"expired", sign(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"exp": past}), true},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{}), true},
		{"hs512 rejected", sign(t, jwt.SigningMethodHS512, secret, jwt.MapClaims{}), true},
		{"garbage", "not.a.jwt", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTokenVerifier(t *testing.T) {
	cfg := configs.Default()
	cfg.JWT.Secret = ""
	assert.Nil(t, NewTokenVerifier(cfg))

	cfg.JWT.Secret = "s"
	assert.NotNil(t, NewTokenVerifier(cfg))
}
