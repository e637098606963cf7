// Package ratelimiter はリソース単位のトークンバケット方式レートリミッターを提供します。
package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrTimeout は待機期限内にトークンを取得できなかったことを示します。
	ErrTimeout = errors.New("ratelimiter: timed out waiting for tokens")
	// ErrExceedsCapacity は要求数がバケット容量を超えていることを示します。
	ErrExceedsCapacity = errors.New("ratelimiter: request exceeds bucket capacity")
	// ErrInvalidConfig は不正な容量・補充レートが指定されたことを示します。
	ErrInvalidConfig = errors.New("ratelimiter: invalid bucket configuration")
)

// Limiter はリソース名ごとの rate.Limiter を管理します。
// 未設定のリソースは fail-closed：TryAcquire は常に false、Acquire は Configure されるか期限まで待機します。
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	changed  map[string]chan struct{} // Configure 時に close して待機者を起こす
	now      func() time.Time
}

// Option は Limiter の設定を変更します。
type Option func(*Limiter)

// WithClock は TryAcquire / Available / Configure が使う時刻関数を差し替えます（テスト用）。
// Acquire の待機は実時間で行われます。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New は空の Limiter を生成します。
func New(opts ...Option) *Limiter {
	l := &Limiter{
		limiters: make(map[string]*rate.Limiter),
		changed:  make(map[string]chan struct{}),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Configure はリソースのバケットを作成、または容量と補充レートを更新します。
// 新規バケットは満タンで開始し、更新時は現在のトークン数を新しい容量に切り詰めます。
func (l *Limiter) Configure(resource string, capacity int, refillPerSecond float64) error {
	if resource == "" || capacity <= 0 || refillPerSecond < 0 || math.IsNaN(refillPerSecond) || math.IsInf(refillPerSecond, 0) {
		return fmt.Errorf("%w: resource=%q capacity=%d refill=%v", ErrInvalidConfig, resource, capacity, refillPerSecond)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[resource]; ok {
		now := l.now()
		lim.SetLimitAt(now, rate.Limit(refillPerSecond))
		lim.SetBurstAt(now, capacity)
	} else {
		l.limiters[resource] = rate.NewLimiter(rate.Limit(refillPerSecond), capacity)
	}

	// 待機中の Acquire を起こす
	if ch, ok := l.changed[resource]; ok {
		close(ch)
		delete(l.changed, resource)
	}
	return nil
}

// IsConfigured はリソースが設定済みかどうかを返します。
func (l *Limiter) IsConfigured(resource string) bool {
	lim, _ := l.lookup(resource)
	return lim != nil
}

// Available は現時点で利用可能なトークン数を返します。未設定なら 0 です。
func (l *Limiter) Available(resource string) float64 {
	lim, _ := l.lookup(resource)
	if lim == nil {
		return 0
	}
	return math.Max(0, lim.TokensAt(l.now()))
}

// TryAcquire はブロックせずに n 個のトークン取得を試みます。
func (l *Limiter) TryAcquire(resource string, n int) bool {
	if n <= 0 {
		n = 1
	}
	lim, _ := l.lookup(resource)
	if lim == nil {
		return false
	}
	return lim.AllowN(l.now(), n)
}

// Acquire は n 個のトークンが得られるまで待機し、待機時間を返します。
// timeout が 0 以下の場合は ctx のみで待機が打ち切られます。
// timeout 超過時は ErrTimeout、ctx のキャンセル時は ctx.Err() を返します。
func (l *Limiter) Acquire(ctx context.Context, resource string, n int, timeout time.Duration) (time.Duration, error) {
	if n <= 0 {
		n = 1
	}
	start := time.Now()

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	fail := func() (time.Duration, error) {
		if err := ctx.Err(); err != nil {
			return time.Since(start), err
		}
		return time.Since(start), fmt.Errorf("%w: resource=%s after %s", ErrTimeout, resource, timeout)
	}

	for {
		lim, changed := l.lookup(resource)
		if lim != nil {
			if n > lim.Burst() {
				return time.Since(start), fmt.Errorf("%w: resource=%s n=%d capacity=%d", ErrExceedsCapacity, resource, n, lim.Burst())
			}
			if lim.Limit() > 0 {
				if err := lim.WaitN(waitCtx, n); err != nil {
					return fail()
				}
				return time.Since(start), nil
			}
			// 補充されないバケットは残量があれば即取得、なければ再設定を待つ
			if lim.AllowN(l.now(), n) {
				return time.Since(start), nil
			}
		}

		select {
		case <-changed:
		case <-waitCtx.Done():
			return fail()
		}
	}
}

// lookup は設定済みなら limiter を、未設定または補充なしの場合に備えて変更通知チャネルも返します。
func (l *Limiter) lookup(resource string) (*rate.Limiter, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.changed[resource]
	if !ok {
		ch = make(chan struct{})
		l.changed[resource] = ch
	}
	return l.limiters[resource], ch
}
