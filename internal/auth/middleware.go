package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware returns an http middleware that resolves the caller identity.
//
// When enabled is false every request runs as devUserID, overridable per
// request with an X-User-Id header so multi-user flows can be exercised
// locally. When enabled, a valid Bearer token is required.
func Middleware(enabled bool, verifier *Verifier, devUserID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				uid := r.Header.Get("X-User-Id")
				if uid == "" {
					uid = devUserID
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: uid})))
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			id, err := verifier.Verify(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
