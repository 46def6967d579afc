package middleware

import (
	"math"
	"net/http"

	"github.com/servicepoint/garage-bookings/internal/http/response"
	"github.com/servicepoint/garage-bookings/internal/platform/ratelimit"
	"github.com/servicepoint/garage-bookings/pkg/logger"
)

// RateLimit throttles requests per client IP against the given store.
// Store errors fail open.
func RateLimit(store ratelimit.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter, err := store.Allow(r.Context(), ClientIP(r))
			if err != nil {
				logger.ErrorContext(r.Context(), "rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				response.RateLimited(w, seconds)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
