package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/tenantry/internal/model"
)

// Decision はレート制限判定の結果。
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitStore はウィンドウ内のリクエスト数を数え、許可可否を判定する。
// 実装はメモリ（単一プロセス）とRedis（複数レプリカ共有）の2種類。
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// RateLimitMetrics はレート制限拒否のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type RateLimitMetrics interface {
	RecordRateLimitRejection(scope string)
}

// RateLimiter はクライアントIPごとのレート制限ミドルウェアを提供する。
type RateLimiter struct {
	store   RateLimitStore
	window  time.Duration
	metrics RateLimitMetrics
}

// NewRateLimiter はRateLimiterを生成する。
func NewRateLimiter(store RateLimitStore, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, window: window}
}

// WithMetrics は拒否メトリクスの記録先を設定したRateLimiterを返す。
func (rl *RateLimiter) WithMetrics(m RateLimitMetrics) *RateLimiter {
	rl.metrics = m
	return rl
}

// Middleware は指定スコープ・上限のレート制限ミドルウェアを返す。
// スコープごとにカウンタが独立し、同一IPでも認証系とAPI全般は別枠になる。
// ストア障害時は可用性を優先してリクエストを通す。
func (rl *RateLimiter) Middleware(scope string, limit int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)

			decision, err := rl.store.Allow(r.Context(), key, limit, rl.window)
			if err != nil {
				slog.Warn("rate limit store unavailable, allowing request",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				slog.Warn("rate limit exceeded",
					slog.String("scope", scope),
					slog.String("client_ip", clientIP(r)),
				)
				if rl.metrics != nil {
					rl.metrics.RecordRateLimitRejection(scope)
				}
				WriteError(w, model.NewRateLimitedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はレート制限キーに使うクライアントIPを取り出す。
// プロキシ経由の場合はX-Forwarded-Forの先頭エントリを使う。
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ip, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(ip)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
