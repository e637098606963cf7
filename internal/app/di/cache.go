package di

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"compliance_screener/internal/app/config"
	"compliance_screener/internal/platform/cache"
	"compliance_screener/internal/platform/metrics"
)

// redisKeyPrefix separates screener keys from other users of a shared Redis.
const redisKeyPrefix = "screener"

// NewDurableTier は設定に応じた永続キャッシュ層を返します。
// Redis が選択され利用可能なら Redis、そうでなければ SQL にフォールバックします。
// どちらも使えない場合は nil（メモリのみ）を返します。
func NewDurableTier(kind string, rdb *redis.Client, db *gorm.DB) cache.Tier {
	switch {
	case kind == config.DurableRedis && rdb != nil:
		return cache.NewRedisTier(rdb, redisKeyPrefix)
	case kind == config.DurableNone:
		return nil
	case db != nil:
		if kind == config.DurableRedis {
			slog.Warn("Redis unavailable, falling back to SQL cache tier")
		}
		return cache.NewSQLTier(db)
	default:
		slog.Warn("no durable cache tier available, running memory-only")
		return nil
	}
}

// NewCacheStore は LRU メモリ層と永続層を組み合わせたキャッシュを生成します。
func NewCacheStore(cfg config.CacheConfig, durable cache.Tier, m *metrics.Metrics) (*cache.Store, error) {
	mem, err := cache.NewMemoryTier(cfg.MemoryEntries)
	if err != nil {
		return nil, err
	}
	return cache.NewStore(mem, durable, cache.WithRecorder(m))
}

// NewMetrics は専用レジストリにメトリクスを登録します。
func NewMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	return reg, metrics.New(reg)
}
