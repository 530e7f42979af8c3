package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/novavida/novavida-backend/api/responses"
	pkgerrors "github.com/novavida/novavida-backend/pkg/errors"
	"github.com/novavida/novavida-backend/pkg/logger"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit applies a fixed-window limit per authenticated account. The scope
// prefixes the counter key so different route groups limit independently.
// Limiter errors fail open so a Redis outage does not take requests down.
func RateLimit(limiter rateLimiter, scope string, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := scope
			if accountID := AccountIDFromContext(r.Context()); accountID != "" {
				key = scope + ":" + accountID
			}
			allowed, _, err := limiter.FixedWindowAllow(r.Context(), key, limit, window)
			if err != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
