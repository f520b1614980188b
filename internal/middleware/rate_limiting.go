package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis_rate/v9"

	"github.com/2beens/gymtrack/internal/telemetry/metrics"
)

// RequestRateLimiter is satisfied by redis_rate.Limiter, tests plug in
// an in-memory fake.
type RequestRateLimiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

// RateLimit guards a subrouter with a per-minute request budget, counted
// under routerName as the limiter key. Requests over the budget get a 425
// with a retry hint.
func RateLimit(
	rateLimiter RequestRateLimiter,
	routerName string,
	allowedPerMin int,
	metricsManager *metrics.Manager,
) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := rateLimiter.Allow(
				r.Context(),
				routerName,
				redis_rate.PerMinute(allowedPerMin),
			)
			if err != nil {
				http.Error(w, "rate limit internal error", http.StatusInternalServerError)
				return
			}

			if res.Allowed <= 0 {
				if metricsManager != nil {
					metricsManager.CounterRateLimitedRequests.Inc()
				}
				http.Error(
					w,
					fmt.Sprintf("retry after %f seconds", res.RetryAfter.Seconds()),
					http.StatusTooEarly,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
