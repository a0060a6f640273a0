package middleware

import (
	"net/http"
)

// RequireOrigin gates the embedded widget surface on an exact scheme+host
// Origin allow-list. No wildcard or suffix matching; an absent Origin header
// is rejected the same as an unknown one.
func RequireOrigin(allowed []string) func(next http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := set[origin]; !ok {
				jsonError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			next.ServeHTTP(w, r)
		})
	}
}
