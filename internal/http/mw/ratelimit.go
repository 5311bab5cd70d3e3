package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitByUser returns a middleware that rate limits by user ID.
// Should be applied AFTER authentication middleware.
// Falls back to IP-based limiting if user is not authenticated.
// A limit of 0 disables rate limiting.
func RateLimitByUser(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			claims := GetUserClaims(r.Context())
			if claims == nil || claims.UserID == "" {
				return httprate.KeyByIP(r)
			}
			return "user:" + claims.UserID, nil
		}),
	)
}

// RateLimitByIP returns a middleware that rate limits by IP address.
// Useful for public endpoints or as a global fallback.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
