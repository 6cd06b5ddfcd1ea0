// Package auth verifies bearer tokens and attaches the caller identity to
// request contexts. When disabled, every request runs as a fixed development
// identity.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID      string
	DisplayName string
}

type contextKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFrom extracts the identity set by the middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Verifier validates HS256 bearer tokens and resolves them to identities,
// caching resolutions for the configured TTL.
type Verifier struct {
	secret []byte
	cache  *identityCache
}

// NewVerifier creates a verifier for tokens signed with the given secret.
// ttlSeconds bounds how long a verified token is served from cache.
func NewVerifier(secret string, ttlSeconds int) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		cache:  newIdentityCache(ttlSeconds),
	}
}

// Verify parses and validates a token, returning the caller identity.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if id, ok := v.cache.get(tokenString); ok {
		return id, nil
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("token missing subject")
	}
	name, _ := claims["name"].(string)
	id := Identity{UserID: sub, DisplayName: name}
	v.cache.set(tokenString, id)
	return id, nil
}
