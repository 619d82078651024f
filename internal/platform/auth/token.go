package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer struct {
	cfg JWTConfig
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(cfg JWTConfig, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, ttl: ttl, now: time.Now}
}

// Issue returns a signed HS256 token and its expiry.
func (t *TokenIssuer) Issue(userID uuid.UUID, name, role string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Name:  name,
		Roles: []string{role},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
