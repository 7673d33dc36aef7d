package gateway

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit returns token-bucket middleware for the API surface: up to r
// requests per second with the given burst, shared across callers.
// Requests over the limit get 429.
func RateLimit(r float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
