package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints HS256 tokens that the shared-secret verifier accepts.
// It backs the `token` command and tests; production clients obtain tokens
// from the login service.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. ttl <= 0 means tokens never expire.
func NewTokenIssuer(secret, issuer, audience string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token issuer: secret is required")
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Issue returns a signed token carrying userID in both the userId and sub claims
func (t *TokenIssuer) Issue(userID string) (string, error) {
	if err := validateIdentity("userId", userID); err != nil {
		return "", err
	}

	now := t.now()
	claims := jwt.MapClaims{
		"userId": userID,
		"sub":    userID,
		"iss":    t.issuer,
		"aud":    []string{t.audience},
		"iat":    now.Unix(),
	}
	if t.ttl > 0 {
		claims["exp"] = now.Add(t.ttl).Unix()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
