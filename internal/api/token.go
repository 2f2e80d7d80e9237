package api

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jofan-cah/logistik-core/internal/core/apperror"
)

// TokenSource supplies bearer tokens for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource holds a single session token obtained elsewhere
// (session handling is outside the core). It decodes the token's claims
// once so an already-expired session fails fast instead of spending a
// round trip on a guaranteed 401.
type StaticTokenSource struct {
	raw       string
	expiresAt *time.Time
}

// NewStaticTokenSource wraps a raw JWT. The signature is not verified
// here; only the backend holds the key. A token that does not parse at all
// is rejected up front.
func NewStaticTokenSource(raw string) (*StaticTokenSource, error) {
	if raw == "" {
		return nil, apperror.NewUnauthorized("api token is required")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, apperror.NewUnauthorized("api token is not a valid JWT").WithCause(err)
	}

	src := &StaticTokenSource{raw: raw}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		src.expiresAt = &exp.Time
	}
	return src, nil
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s.expiresAt != nil && time.Now().After(*s.expiresAt) {
		return "", apperror.NewUnauthorized("session token has expired").
			WithDetail("expired_at", s.expiresAt.Format(time.RFC3339))
	}
	return s.raw, nil
}
