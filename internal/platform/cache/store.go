package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const lockStripes = 64

// Recorder receives cache hit/miss events. *metrics.Metrics satisfies it.
type Recorder interface {
	CacheResult(ns, tier, result string)
}

type noopRecorder struct{}

func (noopRecorder) CacheResult(string, string, string) {}

// Store is the two-tier cache. Operations on one (namespace, key) are
// serialized by a striped lock; different keys never contend on a shared lock
// beyond their stripe.
type Store struct {
	memory  Tier
	durable Tier
	locks   [lockStripes]sync.Mutex
	now     func() time.Time
	rec     Recorder
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRecorder reports hits and misses to r.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.rec = r
		}
	}
}

// NewStore combines memory and durable tiers. durable may be nil, in which
// case the store is memory-only.
func NewStore(memory, durable Tier, opts ...Option) (*Store, error) {
	if memory == nil {
		return nil, errors.New("cache: memory tier is required")
	}
	s := &Store{
		memory:  memory,
		durable: durable,
		now:     time.Now,
		rec:     noopRecorder{},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Get returns the payload stored under (ns, key). Tier 1 is checked first;
// a tier 2 hit is promoted into tier 1. Expired entries are misses.
// Durable tier failures are logged and reported as misses.
func (s *Store) Get(ctx context.Context, ns, key string) ([]byte, bool) {
	mu := &s.locks[stripe(ns, key)]
	mu.Lock()
	defer mu.Unlock()

	now := s.now()

	// 1) memory
	if e, ok, _ := s.memory.Get(ctx, ns, key); ok {
		if !e.Expired(now) {
			s.rec.CacheResult(ns, s.memory.Name(), "hit")
			return e.Payload, true
		}
		_ = s.memory.Delete(ctx, ns, key)
		s.rec.CacheResult(ns, s.memory.Name(), "expired")
	} else {
		s.rec.CacheResult(ns, s.memory.Name(), "miss")
	}

	if s.durable == nil {
		return nil, false
	}

	// 2) durable
	e, ok, err := s.durable.Get(ctx, ns, key)
	if err != nil {
		slog.WarnContext(ctx, "durable cache read failed", "tier", s.durable.Name(), "namespace", ns, "key", key, "error", err)
		s.rec.CacheResult(ns, s.durable.Name(), "error")
		return nil, false
	}
	if !ok {
		s.rec.CacheResult(ns, s.durable.Name(), "miss")
		return nil, false
	}
	if e.Expired(now) {
		_ = s.durable.Delete(ctx, ns, key) // best effort
		s.rec.CacheResult(ns, s.durable.Name(), "expired")
		return nil, false
	}

	// 3) promote
	_ = s.memory.Set(ctx, e)
	s.rec.CacheResult(ns, s.durable.Name(), "hit")
	return e.Payload, true
}

// Set writes value to both tiers. The memory tier is always updated; a durable
// tier failure is returned to the caller.
func (s *Store) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache: ttl must be positive, got %s", ttl)
	}

	mu := &s.locks[stripe(ns, key)]
	mu.Lock()
	defer mu.Unlock()

	now := s.now()
	e := Entry{
		Namespace: ns,
		Key:       key,
		Payload:   append([]byte(nil), value...),
		CreatedAt: now.UTC(),
		TTL:       ttl,
		ExpiresAt: now.Add(ttl).UTC(),
	}
	_ = s.memory.Set(ctx, e)

	if s.durable != nil {
		if err := s.durable.Set(ctx, e); err != nil {
			return fmt.Errorf("cache: durable write %s/%s: %w", ns, key, err)
		}
	}
	return nil
}

// Invalidate removes (ns, key) from both tiers, or the whole namespace when key is empty.
func (s *Store) Invalidate(ctx context.Context, ns, key string) error {
	if key == "" {
		return s.invalidateNamespace(ctx, ns)
	}

	mu := &s.locks[stripe(ns, key)]
	mu.Lock()
	defer mu.Unlock()

	_ = s.memory.Delete(ctx, ns, key)
	if s.durable != nil {
		if err := s.durable.Delete(ctx, ns, key); err != nil {
			return fmt.Errorf("cache: durable delete %s/%s: %w", ns, key, err)
		}
	}
	return nil
}

func (s *Store) invalidateNamespace(ctx context.Context, ns string) error {
	// take every stripe in order so no per-key operation interleaves
	for i := range s.locks {
		s.locks[i].Lock()
	}
	defer func() {
		for i := range s.locks {
			s.locks[i].Unlock()
		}
	}()

	_ = s.memory.DeleteNamespace(ctx, ns)
	if s.durable != nil {
		if err := s.durable.DeleteNamespace(ctx, ns); err != nil {
			return fmt.Errorf("cache: durable delete namespace %s: %w", ns, err)
		}
	}
	return nil
}
