package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryRateLimitStore は単一プロセス用のレート制限ストア。
// キーごとにトークンバケットを保持し、バックグラウンドで
// 期限切れエントリをクリーンアップする。
type MemoryRateLimitStore struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	maxIdle  time.Duration
	stopCh   chan struct{}
}

// NewMemoryRateLimitStore はMemoryRateLimitStoreを生成し、
// クリーンアップのバックグラウンドゴルーチンを開始する。
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	s := &MemoryRateLimitStore{
		limiters: make(map[string]*keyLimiter),
		maxIdle:  30 * time.Minute,
		stopCh:   make(chan struct{}),
	}
	go s.cleanupLoop(5 * time.Minute)
	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryRateLimitStore) Stop() {
	close(s.stopCh)
}

// Allow はキーのリクエストを判定する。
// ウィンドウあたりlimit件を平均レートとし、バーストもlimit件まで許容する。
func (s *MemoryRateLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	s.mu.Lock()
	kl, exists := s.limiters[key]
	if !exists {
		kl = &keyLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit),
		}
		s.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	limiter := kl.limiter
	s.mu.Unlock()

	if !limiter.Allow() {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: window / time.Duration(limit)}, nil
	}
	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Len は現在保持しているリミッターのエントリ数を返す。テスト用。
func (s *MemoryRateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// cleanupLoop はバックグラウンドで長期間未使用のエントリを削除する。
func (s *MemoryRateLimitStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryRateLimitStore) cleanup() {
	cutoff := time.Now().Add(-s.maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if kl.lastAccess.Before(cutoff) {
			delete(s.limiters, key)
		}
	}
}

var _ RateLimitStore = (*MemoryRateLimitStore)(nil)
