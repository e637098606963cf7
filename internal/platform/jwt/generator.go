package jwtmw

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator scopes.
const (
	ScopeScreen = "screen" // evaluate, filter, audit and exchange lookups
	ScopeAdmin  = "admin"  // cache purge
)

// TokenGenerator issues operator tokens for the screening API.
type TokenGenerator struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewGenerator creates a new JWT generator with the provided secret and expiration duration.
func NewGenerator(secret string, expiration time.Duration) *TokenGenerator {
	return &TokenGenerator{
		secret:     []byte(secret),
		expiration: expiration,
		now:        time.Now,
	}
}

// GenerateToken signs an HS256 token for subject carrying the given scopes.
func (g *TokenGenerator) GenerateToken(subject string, scopes ...string) (string, error) {
	if len(g.secret) == 0 {
		return "", fmt.Errorf("jwt secret is empty")
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token subject is empty")
	}
	now := g.now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"exp":   now.Add(g.expiration).Unix(),
		"iat":   now.Unix(),
		"scope": strings.Join(scopes, " "),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}
