// Package middleware provides HTTP middleware for the Tranquili API.
package middleware

import (
	"net/http"
	"strings"
)

// CORS returns middleware that handles CORS headers. A "*" entry echoes any
// origin but never grants credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	normalized := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		normalized = append(normalized, strings.TrimRight(o, "/"))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			wildcard, explicit := false, false
			for _, o := range normalized {
				if o == "*" {
					wildcard = true
				} else if origin != "" && o == origin {
					explicit = true
				}
			}

			if origin != "" && (wildcard || explicit) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				// Setting Allow-Credentials with a wildcard-echoed origin enables CSRF.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
