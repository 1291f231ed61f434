package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockStore struct {
	allowFunc func(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

func (m *mockStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	return m.allowFunc(ctx, key, limit, window)
}

func TestRateLimiterAllows(t *testing.T) {
	store := &mockStore{
		allowFunc: func(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
			if key != "api:203.0.113.5" {
				t.Errorf("unexpected key: %s", key)
			}
			return Decision{Allowed: true, Remaining: 99}, nil
		},
	}
	rl := NewRateLimiter(store, 15*time.Minute)
	handler := rl.Middleware("api", 100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/organizations", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("RateLimit-Remaining"); got != "99" {
		t.Errorf("expected RateLimit-Remaining 99, got %s", got)
	}
}

func TestRateLimiterRejects(t *testing.T) {
	store := &mockStore{
		allowFunc: func(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
			return Decision{Allowed: false, RetryAfter: 30 * time.Second}, nil
		},
	}
	rl := NewRateLimiter(store, 15*time.Minute)
	handler := rl.Middleware("auth", 10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be called when limited")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After 30, got %s", got)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	store := &mockStore{
		allowFunc: func(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
			return Decision{}, errors.New("connection refused")
		},
	}
	rl := NewRateLimiter(store, 15*time.Minute)
	called := false
	handler := rl.Middleware("api", 100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/organizations", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("expected request to pass through when store is unavailable")
	}
}

func TestClientIPForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	if got := clientIP(req); got != "198.51.100.7" {
		t.Errorf("expected first forwarded entry, got %s", got)
	}
}

func TestMemoryStoreLimits(t *testing.T) {
	store := NewMemoryRateLimitStore()
	defer store.Stop()

	ctx := context.Background()
	allowed := 0
	for i := 0; i < 10; i++ {
		decision, err := store.Allow(ctx, "auth:1.2.3.4", 5, time.Minute)
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if decision.Allowed {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("expected 5 allowed of 10, got %d", allowed)
	}

	// 別キーは独立したカウンタを持つ
	decision, err := store.Allow(ctx, "auth:5.6.7.8", 5, time.Minute)
	if err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	if !decision.Allowed {
		t.Error("expected fresh key to be allowed")
	}

	if store.Len() != 2 {
		t.Errorf("expected 2 limiter entries, got %d", store.Len())
	}
}
