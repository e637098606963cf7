// Package cache implements a two-tier TTL cache: a bounded in-process LRU
// in front of a durable tier (Redis or a SQL table).
package cache

import (
	"context"
	"time"
)

// Entry is one cached value. It never leaves this package.
type Entry struct {
	Namespace string        `json:"namespace"`
	Key       string        `json:"key"`
	Payload   []byte        `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the entry is no longer servable at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Tier is one storage level of the Store.
type Tier interface {
	Name() string
	Get(ctx context.Context, ns, key string) (Entry, bool, error)
	Set(ctx context.Context, e Entry) error
	Delete(ctx context.Context, ns, key string) error
	DeleteNamespace(ctx context.Context, ns string) error
}
