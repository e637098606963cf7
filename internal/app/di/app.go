package di

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"compliance_screener/internal/app/config"
	"compliance_screener/internal/feature/compliance/adapters"
	"compliance_screener/internal/feature/compliance/adapters/zoya"
	"compliance_screener/internal/feature/compliance/gateway"
	"compliance_screener/internal/feature/compliance/transport/handler"
	universeusecase "compliance_screener/internal/feature/universe/usecase"
	"compliance_screener/internal/platform/cache"
	infradb "compliance_screener/internal/platform/db"
	healthhandler "compliance_screener/internal/platform/http/handler"
	"compliance_screener/internal/platform/metrics"
	infraredis "compliance_screener/internal/platform/redis"
	"compliance_screener/internal/shared/ratelimiter"
)

// App holds every long-lived component of a server or CLI process.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Limiter    *ratelimiter.Limiter
	Cache      *cache.Store
	Gateway    *gateway.Gateway
	Compliance handler.ComplianceUsecase
	Universe   *universeusecase.UniverseUsecase // nil without TWELVE_DATA_API_KEY
	Reports    *zoya.Client                     // bulk report listing; nil unless the provider is zoya
}

// Build wires the application. On error, everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	app := &App{Config: cfg, Limiter: ratelimiter.New()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Registry, app.Metrics = NewMetrics()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// db（監査ログと SQL キャッシュ層）
	if cfg.DB.DSN != "" {
		app.DB, err = infradb.Open(infradb.Config{
			Driver:        cfg.DB.Driver,
			DSN:           cfg.DB.DSN,
			RunMigrations: cfg.RunMigrations,
		}, &adapters.AuditModel{}, &cache.CacheEntryModel{})
		if err != nil {
			return nil, err
		}
	}

	// Redis
	if cfg.Cache.Durable == config.DurableRedis {
		rdb, rerr := infraredis.NewRedisClient(ctx, infraredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if rerr != nil {
			slog.Warn("Redis unavailable", "error", rerr)
		} else {
			app.Redis = rdb
		}
	}

	durable := NewDurableTier(cfg.Cache.Durable, app.Redis, app.DB)
	if sqlTier, ok := durable.(*cache.SQLTier); ok {
		// 起動時に期限切れ行を掃除（Redis と違い TTL で自動削除されない）
		if n, perr := sqlTier.PurgeExpired(ctx, time.Now()); perr != nil {
			slog.Warn("failed to purge expired cache rows", "error", perr)
		} else if n > 0 {
			slog.Info("purged expired cache rows", "rows", n)
		}
	}
	app.Cache, err = NewCacheStore(cfg.Cache, durable, app.Metrics)
	if err != nil {
		return nil, err
	}

	provider, err := NewProvider(cfg.Compliance,
		zoya.WithPacer(LimiterPacer(app.Limiter, cfg.Compliance.Provider, cfg.RateLimit.AcquireTimeout)))
	if err != nil {
		return nil, err
	}
	if zc, ok := provider.(*zoya.Client); ok {
		app.Reports = zc
	}
	norm, err := NewNormalizer(cfg.ExchangesFile)
	if err != nil {
		return nil, err
	}
	audit := NewAuditRepository(app.DB)

	app.Gateway, err = NewGateway(cfg, provider, app.Cache, app.Limiter, audit, app.Metrics)
	if err != nil {
		return nil, err
	}
	app.Compliance, err = NewComplianceUsecase(cfg.Filter, norm, app.Gateway, audit, app.Metrics)
	if err != nil {
		return nil, err
	}
	app.Universe, err = NewUniverse(cfg.TwelveData, app.Limiter, cfg.RateLimit.AcquireTimeout)
	if err != nil {
		return nil, err
	}

	slog.Info("application wired",
		"provider", provider.Name(),
		"exchange_table_version", norm.Version(),
		"durable_cache", cfg.Cache.Durable,
		"audit", audit != nil,
		"universe", app.Universe != nil,
	)
	return app, nil
}

// ReadinessChecks returns a ping per external dependency.
func (a *App) ReadinessChecks() map[string]healthhandler.CheckFunc {
	checks := map[string]healthhandler.CheckFunc{}
	if a.DB != nil {
		db := a.DB
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		rdb := a.Redis
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases Redis and database connections.
func (a *App) Close() {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("failed to close resources", "error", err)
	}
}
