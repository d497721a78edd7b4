// Package auth implements the credential capability: verify a bearer token
// and obtain the principal behind it. Token issuance endpoints live outside
// this service; Generate exists for admin tooling and tests.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-session-service/internal/domain"
)

// Claims carried inside a service token.
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("auth: empty JWT secret")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses a token (with or without the "Bearer " prefix) and returns
// the principal it names. Any parse, signature, or expiry failure maps to
// ErrUnauthorized.
func (v *Verifier) Verify(token string) (domain.Principal, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	role := domain.Role(claims.Role)
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	return domain.Principal{
		ID:       claims.UserID,
		Username: claims.Username,
		Role:     role,
	}, nil
}

// Generate signs a token for the given principal, valid for ttl.
func (v *Verifier) Generate(p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   p.ID,
		Username: p.Username,
		Role:     string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
