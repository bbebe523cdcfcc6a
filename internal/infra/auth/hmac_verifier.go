package auth

import (
	"errors"
	"fmt"

	model "go_mock_resolver/internal/domain/model/mock_rule"
	configs "go_mock_resolver/internal/infra/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrEmptyToken = errors.New("empty token")

// HMACVerifier 校验 HS256 签名与时间类声明，不关心具体 claims
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

var _ model.TokenVerifier = (*HMACVerifier)(nil)

// NewTokenVerifier jwt.secret 为空时返回 nil，require_jwt 的规则一律校验失败
func NewTokenVerifier(c *configs.RuleConfig) model.TokenVerifier {
	if c.JWT.Secret == "" {
		return nil
	}
	return NewHMACVerifier(c.JWT.Secret)
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (v *HMACVerifier) Verify(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	_, err := v.parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}
