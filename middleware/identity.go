package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const UserEmailKey contextKey = "user_email"

// IdentityHeader is set by the authenticating proxy in front of this service.
const IdentityHeader = "X-User-Email"

// Identity puts the caller's email, when present, into the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.Header.Get(IdentityHeader))
		if email == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), UserEmailKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests that carry no caller identity
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsIdentified(r.Context()) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "missing caller identity"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserEmail extracts the caller email from context
func GetUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok
}

func IsIdentified(ctx context.Context) bool {
	_, ok := GetUserEmail(ctx)
	return ok
}
