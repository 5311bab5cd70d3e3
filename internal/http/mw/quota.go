package mw

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmylchreest/herbscan-api/internal/metrics"
	"github.com/jmylchreest/herbscan-api/internal/service"
)

// QuotaChecker reports a user's scan allowance.
type QuotaChecker interface {
	Limits(ctx context.Context, userID string) (*service.Limits, error)
}

// ScanQuota returns middleware that rejects free users who have used their daily scans.
// Must run after Auth.
func ScanQuota(checker QuotaChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserClaims(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			limits, err := checker.Limits(r.Context(), claims.UserID)
			if err != nil {
				slog.Error("failed to check scan quota", "user_id", claims.UserID, "error", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			if limits.DailyLimit != nil {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(*limits.DailyLimit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(*limits.ScansRemaining))
			}

			if !limits.CanScan {
				metrics.QuotaRejectionsTotal.Inc()
				slog.Debug("daily scan limit reached",
					"user_id", claims.UserID,
					"used", limits.ScansUsedToday,
				)
				writeJSON(w, http.StatusPaymentRequired, map[string]any{
					"error":          "Daily scan limit reached",
					"needsUpgrade":   true,
					"scansRemaining": 0,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
