// Package config は環境変数からアプリケーション設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Compliance providers.
const (
	ProviderZoya   = "zoya"
	ProviderStatic = "static"
)

// Durable cache tiers.
const (
	DurableRedis = "redis"
	DurableSQL   = "sql"
	DurableNone  = "none"
)

// Config はサーバーとCLIが共有する設定です。
type Config struct {
	HTTP          HTTPConfig       `envconfig:"HTTP"`
	JWTSecret     string           `envconfig:"JWT_SECRET"`
	JWTExpiration time.Duration    `envconfig:"JWT_EXPIRATION" default:"24h" validate:"gt=0"`
	Log           LogConfig        `envconfig:"LOG"`
	Compliance    ComplianceConfig `envconfig:"COMPLIANCE"`
	RateLimit     RateLimitConfig  `envconfig:"RATELIMIT"`
	Cache         CacheConfig      `envconfig:"CACHE"`
	Retry         RetryConfig      `envconfig:"RETRY"`
	Filter        FilterConfig     `envconfig:"FILTER"`
	ExchangesFile string           `envconfig:"EXCHANGES_FILE"`
	DB            DBConfig         `envconfig:"DB"`
	RunMigrations bool             `envconfig:"RUN_MIGRATIONS" default:"true"`
	Redis         RedisConfig      `envconfig:"REDIS"`
	TwelveData    TwelveDataConfig `envconfig:"TWELVE_DATA"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	Format string `envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
}

type ComplianceConfig struct {
	Provider       string     `envconfig:"PROVIDER" default:"zoya" validate:"oneof=zoya static"`
	Zoya           ZoyaConfig `envconfig:"ZOYA"`
	StaticDataFile string     `envconfig:"STATIC_DATA_FILE" default:"data/compliance.csv"`
}

type ZoyaConfig struct {
	APIKey      string        `envconfig:"API_KEY"`
	Environment string        `envconfig:"ENVIRONMENT" validate:"omitempty,oneof=sandbox live"`
	SandboxURL  string        `envconfig:"API_URL_SANDBOX" validate:"omitempty,url"`
	LiveURL     string        `envconfig:"API_URL_LIVE" validate:"omitempty,url"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"10s" validate:"gt=0"`
}

type RateLimitConfig struct {
	Capacity        int           `envconfig:"CAPACITY" default:"10" validate:"min=1"`
	RefillPerSecond float64       `envconfig:"REFILL_PER_SECOND" default:"2" validate:"gte=0"`
	AcquireTimeout  time.Duration `envconfig:"ACQUIRE_TIMEOUT" default:"30s" validate:"gt=0"`
}

type CacheConfig struct {
	MemoryEntries  int           `envconfig:"MEMORY_ENTRIES" default:"10000" validate:"min=1"`
	Durable        string        `envconfig:"DURABLE" default:"sql" validate:"oneof=redis sql none"`
	ComplianceTTL  time.Duration `envconfig:"COMPLIANCE_TTL" default:"720h" validate:"gt=0"`
	UnavailableTTL time.Duration `envconfig:"UNAVAILABLE_TTL" default:"1h" validate:"gt=0"`
	NotFoundTTL    time.Duration `envconfig:"NOT_FOUND_TTL" default:"24h" validate:"gt=0"`
}

type RetryConfig struct {
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	BaseDelay   time.Duration `envconfig:"BASE_DELAY" default:"1s" validate:"gt=0"`
	MaxDelay    time.Duration `envconfig:"MAX_DELAY" default:"8s" validate:"gtefield=BaseDelay"`
}

type FilterConfig struct {
	MinConfidence string `envconfig:"MIN_CONFIDENCE" default:"MEDIUM" validate:"oneof=MEDIUM HIGH medium high"`
	Concurrency   int    `envconfig:"CONCURRENCY" default:"8" validate:"min=1,max=64"`
}

type DBConfig struct {
	Driver string `envconfig:"DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	DSN    string `envconfig:"DSN" default:"compliance.db"`
}

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"min=0"`
}

type TwelveDataConfig struct {
	APIKey  string `envconfig:"API_KEY"`
	BaseURL string `envconfig:"BASE_URL" validate:"omitempty,url"`
}

var validate = validator.New()

// Load は .env（存在すれば）と環境変数から設定を読み込み、検証します。
// 既に設定されている環境変数は .env で上書きされません。
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			slog.Info(".env not found; using system environment variables", "file", f)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate はフィールド単位の検証に加えて、プロバイダ依存の必須項目を確認します。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	if c.Compliance.Provider == ProviderZoya && strings.TrimSpace(c.Compliance.Zoya.APIKey) == "" {
		errs = append(errs, errors.New("COMPLIANCE_ZOYA_API_KEY is required when COMPLIANCE_PROVIDER=zoya"))
	}
	if c.Compliance.Provider == ProviderStatic && strings.TrimSpace(c.Compliance.StaticDataFile) == "" {
		errs = append(errs, errors.New("COMPLIANCE_STATIC_DATA_FILE is required when COMPLIANCE_PROVIDER=static"))
	}
	if c.Cache.Durable == DurableSQL && strings.TrimSpace(c.DB.DSN) == "" {
		errs = append(errs, errors.New("DB_DSN is required when CACHE_DURABLE=sql"))
	}
	if c.Cache.Durable == DurableRedis && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when CACHE_DURABLE=redis"))
	}
	return errors.Join(errs...)
}

// Addr は HTTP サーバーの待ち受けアドレスを返します。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}
