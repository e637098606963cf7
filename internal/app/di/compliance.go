// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"compliance_screener/internal/app/config"
	"compliance_screener/internal/feature/compliance/adapters"
	"compliance_screener/internal/feature/compliance/adapters/static"
	"compliance_screener/internal/feature/compliance/adapters/zoya"
	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/gateway"
	"compliance_screener/internal/feature/compliance/normalizer"
	"compliance_screener/internal/feature/compliance/transport/handler"
	"compliance_screener/internal/feature/compliance/usecase"
	"compliance_screener/internal/platform/cache"
	infrahttp "compliance_screener/internal/platform/http"
	"compliance_screener/internal/platform/metrics"
	"compliance_screener/internal/shared/ratelimiter"
)

// NewProvider は COMPLIANCE_PROVIDER に応じたプロバイダを生成します。
// opts は Zoya クライアントにのみ適用されます。
func NewProvider(cfg config.ComplianceConfig, opts ...zoya.ClientOption) (gateway.Provider, error) {
	switch cfg.Provider {
	case config.ProviderStatic:
		p, err := static.Open(cfg.StaticDataFile)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderZoya:
		zc := zoya.Config{
			APIKey:      cfg.Zoya.APIKey,
			Environment: cfg.Zoya.Environment,
			SandboxURL:  cfg.Zoya.SandboxURL,
			LiveURL:     cfg.Zoya.LiveURL,
			Timeout:     cfg.Zoya.Timeout,
		}
		c, err := zoya.NewClient(zc, infrahttp.NewHTTPClient(infrahttp.DefaultClientConfig(zc.Timeout)), opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown compliance provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}

// LimiterPacer は一括取得の各ページ前に resource のトークンを1つ取得する待機関数を返します。
func LimiterPacer(limiter *ratelimiter.Limiter, resource string, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := limiter.Acquire(ctx, resource, 1, timeout)
		return err
	}
}

// NewNormalizer は EXCHANGES_FILE が指定されていればそれを、なければ組み込みの取引所表を使います。
func NewNormalizer(path string) (*normalizer.Normalizer, error) {
	if path == "" {
		return normalizer.New()
	}
	return normalizer.LoadFile(path)
}

// NewGateway はプロバイダ用のレートリミットリソースを設定してからゲートウェイを生成します。
func NewGateway(cfg *config.Config, p gateway.Provider, store *cache.Store, limiter *ratelimiter.Limiter,
	audit gateway.AuditLog, m *metrics.Metrics) (*gateway.Gateway, error) {
	resource := cfg.Compliance.Provider
	if err := limiter.Configure(resource, cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	gcfg := gateway.Config{
		Resource:       resource,
		CacheTTL:       cfg.Cache.ComplianceTTL,
		UnavailableTTL: cfg.Cache.UnavailableTTL,
		NotFoundTTL:    cfg.Cache.NotFoundTTL,
		AcquireTimeout: cfg.RateLimit.AcquireTimeout,
		RequestTimeout: cfg.Compliance.Zoya.Timeout,
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      cfg.Retry.BaseDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		Concurrency:    cfg.Filter.Concurrency,
	}
	opts := []gateway.Option{gateway.WithRecorder(m)}
	if audit != nil {
		opts = append(opts, gateway.WithAuditLog(audit))
	}
	return gateway.New(p, store, limiter, gcfg, opts...)
}

// NewAuditRepository は DB があれば gorm の監査ログを返し、なければ nil を返します。
func NewAuditRepository(db *gorm.DB) usecase.AuditRepository {
	if db == nil {
		return nil
	}
	return adapters.NewAuditRepository(db)
}

// NewComplianceUsecase は判定ユースケースを生成します。
func NewComplianceUsecase(cfg config.FilterConfig, n *normalizer.Normalizer, g *gateway.Gateway,
	audit usecase.AuditRepository, m *metrics.Metrics) (handler.ComplianceUsecase, error) {
	minConf, err := entity.ParseConfidence(cfg.MinConfidence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	uc, err := usecase.NewComplianceUsecase(n, g, audit, usecase.Config{
		MinConfidence: minConf,
		Concurrency:   cfg.Concurrency,
	}, usecase.WithRecorder(m))
	if err != nil {
		return nil, err
	}
	return uc, nil
}
