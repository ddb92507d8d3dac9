// Package auth implements the identity collaborator: bearer-token
// verification and the RequireAuth check the ledger performs before every
// mutating operation. Token signing stands in for the wallet signatures a
// production deployment would verify at the gateway.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gridwatt/energy-engine/internal/ledger"
)

type contextKey struct{}

var identityKey contextKey

// TokenService signs and verifies HMAC JWTs whose subject is the caller's
// market identity (address).
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. The secret must be non-empty.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: jwt secret must be provided")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the given identity.
func (s *TokenService) Issue(identity string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": identity,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses a token string and returns the identity it was issued for.
func (s *TokenService) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid or expired token", ledger.ErrUnauthorized)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: malformed claims", ledger.ErrUnauthorized)
	}
	identity, ok := claims["sub"].(string)
	if !ok || identity == "" {
		return "", fmt.Errorf("%w: token carries no identity", ledger.ErrUnauthorized)
	}
	return identity, nil
}

// Middleware extracts a Bearer token, verifies it, and stores the caller's
// identity in the request context. Requests without an Authorization header
// pass through unauthenticated; RequireAuth fails them later if they try to
// mutate state. Read-only endpoints stay open this way.
func (s *TokenService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			http.Error(w, `{"error":"invalid token format, must be Bearer token"}`, http.StatusUnauthorized)
			return
		}

		identity, err := s.Verify(tokenString)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Identity returns the authenticated identity from the context, if any.
func Identity(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey).(string)
	return identity, ok
}

// ContextAuthorizer implements ledger.Authorizer against the identity the
// middleware placed in the request context.
type ContextAuthorizer struct{}

// RequireAuth fails unless the request was authenticated as identity.
func (ContextAuthorizer) RequireAuth(ctx context.Context, identity string) error {
	actual, ok := Identity(ctx)
	if !ok {
		return fmt.Errorf("%w: request is not authenticated", ledger.ErrUnauthorized)
	}
	if actual != identity {
		return fmt.Errorf("%w: authenticated as %s, not %s", ledger.ErrUnauthorized, actual, identity)
	}
	return nil
}
