package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Middleware returns an HTTP middleware that validates API key authentication.
// An empty apiKey disables authentication. Requests to skipPaths are always
// allowed. If rateLimiter is non-nil, failed attempts are tracked and clients
// are blocked after 10 failures within a minute.
func Middleware(apiKey string, skipPaths []string, rateLimiter *RateLimiter) func(http.Handler) http.Handler {
	skipSet := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || skipSet[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := ClientIPKeyFunc(r)
			if rateLimiter != nil && rateLimiter.IsAuthBlocked(clientIP) {
				retryAfter := rateLimiter.AuthBlockRetryAfter(clientIP)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				writeAuthError(w, http.StatusTooManyRequests, "rate_limited", "Too many failed authentication attempts. Try again later.")
				return
			}

			if !ValidateKey(KeyFromRequest(r), apiKey) {
				if rateLimiter != nil {
					rateLimiter.AuthFailure(clientIP)
				}
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid API key")
				return
			}

			if rateLimiter != nil {
				rateLimiter.AuthSuccess(clientIP)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
