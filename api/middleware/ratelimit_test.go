package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/novavida/novavida-backend/pkg/logger"
)

type stubLimiter struct {
	allowed bool
	err     error
	scopes  []string
}

func (s *stubLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	s.scopes = append(s.scopes, scope)
	return s.allowed, 1, s.err
}

func rateLimitHandler(limiter rateLimiter) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "middleware-test"})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RateLimit(limiter, "coins", 5, time.Minute, logg)(next)
}

func TestRateLimitAllows(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	req := httptest.NewRequest(http.MethodPost, "/coins/check", nil)
	req = req.WithContext(WithAccountID(req.Context(), "acc-1"))
	rec := httptest.NewRecorder()

	rateLimitHandler(limiter).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if len(limiter.scopes) != 1 || limiter.scopes[0] != "coins:acc-1" {
		t.Fatalf("unexpected scopes %v", limiter.scopes)
	}
}

func TestRateLimitBlocks(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	req := httptest.NewRequest(http.MethodPost, "/coins/check", nil)
	rec := httptest.NewRecorder()

	rateLimitHandler(limiter).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	req := httptest.NewRequest(http.MethodPost, "/coins/check", nil)
	rec := httptest.NewRecorder()

	rateLimitHandler(limiter).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected fail-open pass-through, got %d", rec.Code)
	}
}
