package di

import (
	"time"

	"compliance_screener/internal/app/config"
	"compliance_screener/internal/feature/universe/adapters/twelvedata"
	universeusecase "compliance_screener/internal/feature/universe/usecase"
	infrahttp "compliance_screener/internal/platform/http"
	"compliance_screener/internal/shared/ratelimiter"
)

// Twelve Data free tier: 8 requests per minute.
const (
	twelveDataCapacity = 8
	twelveDataRefill   = 8.0 / 60
	twelveDataTimeout  = 15 * time.Second
)

// NewUniverse は Twelve Data の上場銘柄ソースを使う UniverseUsecase を生成します。
// APIキーが未設定なら nil を返します。
func NewUniverse(cfg config.TwelveDataConfig, limiter *ratelimiter.Limiter, acquireTimeout time.Duration) (*universeusecase.UniverseUsecase, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	if err := limiter.Configure(universeusecase.DefaultResource, twelveDataCapacity, twelveDataRefill); err != nil {
		return nil, err
	}
	tdCfg := twelvedata.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Timeout: twelveDataTimeout}
	source := twelvedata.NewTwelveDataListings(tdCfg, infrahttp.NewHTTPClient(infrahttp.DefaultClientConfig(tdCfg.Timeout)))
	return universeusecase.NewUniverseUsecase(source, limiter, universeusecase.DefaultResource, acquireTimeout), nil
}
