// Package identity verifies the bearer tokens issued by the
// authentication collaborator (spec §6: "Authentication is provided by
// a collaborator; the core assumes an authenticated user_id and role on
// every request"). It deliberately stops at verification: token
// issuance, password storage, OAuth exchange and refresh-token rotation
// belong to that collaborator, not to this service.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ragserve/core/pkg/errors"
)

// Claims is the subset of an incoming token the core acts on.
type Claims struct {
	UserID string
	Role   string
}

// Verifier checks a bearer token and extracts Claims from it.
type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// Config drives the JWT verifier.
type Config struct {
	Secret string
}

type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type jwtVerifier struct {
	secret string
}

// NewJWTVerifier builds a Verifier that checks HS256 tokens signed with
// cfg.Secret, mirroring the teacher's token_crypto.go HMAC scheme
// trimmed to verification only.
func NewJWTVerifier(cfg Config) Verifier {
	return &jwtVerifier{secret: cfg.Secret}
}

func (v *jwtVerifier) Verify(_ context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.Wrap(apperrors.CodeUnauthorized, "token missing", nil)
	}
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(v.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, apperrors.Wrap(apperrors.CodeUnauthorized, "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.Wrap(apperrors.CodeUnauthorized, "token invalid", nil)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
		return Claims{}, apperrors.Wrap(apperrors.CodeUnauthorized, "token expired", nil)
	}
	if claims.Subject == "" {
		return Claims{}, apperrors.Wrap(apperrors.CodeUnauthorized, "token missing subject", nil)
	}
	return Claims{UserID: claims.Subject, Role: claims.Role}, nil
}
