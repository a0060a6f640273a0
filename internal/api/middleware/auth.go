package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agasthyaps/nisa-labs-sub000/internal/auth"
	"github.com/agasthyaps/nisa-labs-sub000/internal/models"
)

type contextKey string

const SessionContextKey contextKey = "session"

// AuthMiddleware resolves bearer-token sessions for authenticated endpoints.
type AuthMiddleware struct {
	auth *auth.Service
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(authSvc *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{auth: authSvc}
}

// RequireAuth verifies the Authorization bearer token and injects the session
// into the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		sess, err := m.auth.Resolve(r.Context(), token)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "session lookup failed")
			return
		}
		if sess == nil {
			jsonError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetSessionFromContext retrieves the authenticated session from the request
// context.
func GetSessionFromContext(ctx context.Context) *models.Session {
	sess, ok := ctx.Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return sess
}
