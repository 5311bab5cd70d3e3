package mw

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TimeoutConfig defines timeout behavior for different path patterns.
type TimeoutConfig struct {
	// Default timeout for most endpoints
	Default time.Duration
	// Extended timeout for endpoints that wait on an upstream provider
	Extended time.Duration
	// Path substrings that get the Extended timeout (e.g. "/identify")
	ExtendedPatterns []string
}

// Timeout returns a middleware that bounds the request context. Handlers and the
// stores and clients they call observe the deadline through ctx; nothing is written
// on their behalf, so a late handler still owns its response.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := cfg.Default
			for _, pattern := range cfg.ExtendedPatterns {
				if strings.Contains(r.URL.Path, pattern) {
					timeout = cfg.Extended
					break
				}
			}
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
