package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"fintrack/internal/log"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID int64
	Email  string
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func (m *TokenManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" {
			writeUnauthorized(w, "Missing token")
			return
		}

		scheme, tokenStr, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
			writeUnauthorized(w, "Invalid token")
			return
		}

		claims, err := m.Parse(strings.TrimSpace(tokenStr))
		if err != nil {
			log.FromContext(r.Context()).Debug("Rejected bearer token", "error", err)
			writeUnauthorized(w, "Invalid token")
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: claims.ID, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller set by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
