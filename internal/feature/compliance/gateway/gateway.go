// Package gateway queries a compliance provider through the cache and rate
// limiter, retrying transient failures and degrading to an unknown verdict.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/shared/ratelimiter"
)

// Namespace is the cache namespace for compliance verdicts.
const Namespace = "compliance"

// Provider fetches the raw report for one base symbol.
// A nil report with a nil error means the provider does not cover the symbol.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (*entity.ProviderReport, error)
}

// Cache is the subset of the cache store the gateway needs.
type Cache interface {
	Get(ctx context.Context, ns, key string) ([]byte, bool)
	Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, ns, key string) error
}

// Limiter hands out provider request tokens.
type Limiter interface {
	IsConfigured(resource string) bool
	Acquire(ctx context.Context, resource string, n int, timeout time.Duration) (time.Duration, error)
}

// AuditLog persists exclusion decisions.
type AuditLog interface {
	Append(ctx context.Context, rec entity.AuditRecord) error
}

// Recorder receives gateway metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ProviderRequest(provider, outcome string, d time.Duration)
	ProviderRetry(provider string)
	RateLimitWait(resource string, d time.Duration)
	Verdict(verdict, source string)
	Degraded(provider string)
	AuditFailure()
}

// DegradedEvent is emitted when retries are exhausted and the verdict is
// synthesized as unknown. It is informational, not an error.
type DegradedEvent struct {
	Symbol   string
	Provider string
	Attempts int
	Err      error
	At       time.Time
}

// Config controls caching, rate limiting and retries.
type Config struct {
	Resource       string
	CacheTTL       time.Duration
	UnavailableTTL time.Duration
	NotFoundTTL    time.Duration
	AcquireTimeout time.Duration
	RequestTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Concurrency    int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Resource:       "zoya",
		CacheTTL:       30 * 24 * time.Hour,
		UnavailableTTL: time.Hour,
		NotFoundTTL:    24 * time.Hour,
		AcquireTimeout: 30 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       8 * time.Second,
		Concurrency:    8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Resource == "" {
		c.Resource = d.Resource
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.UnavailableTTL <= 0 {
		c.UnavailableTTL = d.UnavailableTTL
	}
	if c.NotFoundTTL <= 0 {
		c.NotFoundTTL = d.NotFoundTTL
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = max(d.MaxDelay, c.BaseDelay)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

// Gateway is safe for concurrent use.
type Gateway struct {
	provider   Provider
	cache      Cache
	limiter    Limiter
	audit      AuditLog
	cfg        Config
	flight     singleflight.Group
	onDegraded func(context.Context, DegradedEvent)
	metrics    Recorder
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAuditLog records exclusion decisions in a.
func WithAuditLog(a AuditLog) Option {
	return func(g *Gateway) { g.audit = a }
}

// WithDegradedHook replaces the default log line emitted on degradation.
func WithDegradedHook(fn func(context.Context, DegradedEvent)) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.onDegraded = fn
		}
	}
}

// WithRecorder reports metrics to r.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.metrics = r
		}
	}
}

// WithClock overrides the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New wires a Gateway. The limiter resource must already be configured.
func New(p Provider, c Cache, l Limiter, cfg Config, opts ...Option) (*Gateway, error) {
	if p == nil || c == nil || l == nil {
		return nil, fmt.Errorf("%w: gateway needs a provider, a cache and a limiter", domain.ErrConfiguration)
	}
	cfg = cfg.withDefaults()
	if !l.IsConfigured(cfg.Resource) {
		return nil, fmt.Errorf("%w: rate limit resource %q is not configured", domain.ErrConfiguration, cfg.Resource)
	}

	g := &Gateway{
		provider:   p,
		cache:      c,
		limiter:    l,
		cfg:        cfg,
		onDegraded: logDegraded,
		metrics:    noopRecorder{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Name returns the provider name used as data source.
func (g *Gateway) Name() string { return g.provider.Name() }

// Check returns the verdict for one base symbol.
// Only configuration errors, cancellation and empty symbols are returned as errors;
// provider trouble degrades to an unknown verdict.
func (g *Gateway) Check(ctx context.Context, symbol string) (entity.ComplianceStatus, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return entity.ComplianceStatus{}, fmt.Errorf("%w: empty symbol", domain.ErrInvalidTicker)
	}

	if st, ok := g.cached(ctx, symbol); ok {
		g.metrics.Verdict(st.IsCompliant.String(), "cache")
		return st, nil
	}

	v, err, shared := g.flight.Do(g.cacheKey(symbol), func() (any, error) {
		return g.lookup(ctx, symbol)
	})
	if err != nil && shared && ctx.Err() == nil && isContextErr(err) {
		// the caller that led the shared lookup went away; ours is still live
		return g.lookup(ctx, symbol)
	}
	if err != nil {
		return entity.ComplianceStatus{}, err
	}
	return v.(entity.ComplianceStatus), nil
}

// CheckBatch checks every symbol independently with bounded fan-out.
// Result keys are the upper-cased symbols. Only configuration errors and
// cancellation abort the batch.
func (g *Gateway) CheckBatch(ctx context.Context, symbols []string) (map[string]entity.ComplianceStatus, error) {
	out := make(map[string]entity.ComplianceStatus, len(symbols))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)

	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}

		eg.Go(func() error {
			st, err := g.Check(egCtx, sym)
			if err != nil {
				return fmt.Errorf("check %s: %w", sym, err)
			}
			mu.Lock()
			out[sym] = st
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops the cached verdict for symbol, or every verdict when symbol is empty.
func (g *Gateway) Invalidate(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return g.cache.Invalidate(ctx, Namespace, "")
	}
	return g.cache.Invalidate(ctx, Namespace, g.cacheKey(symbol))
}

func (g *Gateway) cacheKey(symbol string) string {
	return fmt.Sprintf("%s:%s:%s", g.provider.Name(), StatusMappingVersion, symbol)
}

func (g *Gateway) cached(ctx context.Context, symbol string) (entity.ComplianceStatus, bool) {
	key := g.cacheKey(symbol)
	b, ok := g.cache.Get(ctx, Namespace, key)
	if !ok {
		return entity.ComplianceStatus{}, false
	}
	var st entity.ComplianceStatus
	if err := json.Unmarshal(b, &st); err != nil {
		slog.WarnContext(ctx, "dropping corrupted cached verdict", "symbol", symbol, "error", err)
		_ = g.cache.Invalidate(ctx, Namespace, key)
		return entity.ComplianceStatus{}, false
	}
	return st, true
}

func (g *Gateway) store(ctx context.Context, symbol string, st entity.ComplianceStatus, ttl time.Duration) {
	b, err := json.Marshal(st)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode verdict", "symbol", symbol, "error", err)
		return
	}
	// best effort: a failed durable write still leaves the memory tier populated
	if err := g.cache.Set(ctx, Namespace, g.cacheKey(symbol), b, ttl); err != nil {
		slog.WarnContext(ctx, "failed to cache verdict", "symbol", symbol, "error", err)
	}
}

// lookup runs the provider protocol for a cache miss.
func (g *Gateway) lookup(ctx context.Context, symbol string) (entity.ComplianceStatus, error) {
	report, attempts, err := g.fetch(ctx, symbol)
	now := g.now().UTC()
	name := g.provider.Name()

	var (
		st     entity.ComplianceStatus
		ttl    time.Duration
		source = "provider"
	)
	switch {
	case err == nil && report == nil:
		st = unknownStatus(symbol, name, now, entity.ReasonNotFound)
		ttl = g.cfg.NotFoundTTL
	case err == nil:
		st = g.fromReport(ctx, symbol, report, now)
		ttl = g.cfg.CacheTTL
	case ctx.Err() != nil:
		// abandoned work is not cached
		return entity.ComplianceStatus{}, ctx.Err()
	case errors.Is(err, domain.ErrConfiguration):
		slog.ErrorContext(ctx, "compliance provider rejected configuration", "provider", name, "symbol", symbol, "error", err)
		return entity.ComplianceStatus{}, err
	case errors.Is(err, domain.ErrDataQuality):
		slog.WarnContext(ctx, "malformed provider payload", "provider", name, "symbol", symbol, "error", err)
		st = unknownStatus(symbol, name, now, entity.ReasonMalformedPayload)
		ttl = g.cfg.UnavailableTTL
	default:
		st = unknownStatus(symbol, entity.DataSourceUnavailable, now, entity.ReasonProviderUnavailable)
		ttl = g.cfg.UnavailableTTL
		source = "degraded"
		g.metrics.Degraded(name)
		g.onDegraded(ctx, DegradedEvent{Symbol: symbol, Provider: name, Attempts: attempts, Err: err, At: now})
	}

	g.store(ctx, symbol, st, ttl)
	if st.IsCompliant != entity.VerdictCompliant {
		g.record(ctx, symbol, st, now)
	}
	g.metrics.Verdict(st.IsCompliant.String(), source)
	return st, nil
}

// fetch calls the provider with one rate-limit token per attempt and retries
// transient failures with exponential backoff.
func (g *Gateway) fetch(ctx context.Context, symbol string) (*entity.ProviderReport, int, error) {
	name := g.provider.Name()
	attempts := 0

	op := func() (*entity.ProviderReport, error) {
		attempts++

		waited, err := g.limiter.Acquire(ctx, g.cfg.Resource, 1, g.cfg.AcquireTimeout)
		g.metrics.RateLimitWait(g.cfg.Resource, waited)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, backoff.Permanent(ctx.Err())
			case errors.Is(err, ratelimiter.ErrTimeout):
				return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
			default:
				return nil, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrConfiguration, err))
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()

		start := time.Now()
		report, err := g.provider.Fetch(reqCtx, symbol)
		g.metrics.ProviderRequest(name, outcome(err), time.Since(start))
		if err == nil {
			return report, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if isTransient(err) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     g.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         g.cfg.MaxDelay,
	}
	report, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(g.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.metrics.ProviderRetry(name)
			slog.WarnContext(ctx, "transient provider failure, retrying",
				"provider", name, "symbol", symbol, "attempt", attempts, "backoff", next, "error", err)
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return report, attempts, err
}

func (g *Gateway) fromReport(ctx context.Context, symbol string, r *entity.ProviderReport, now time.Time) entity.ComplianceStatus {
	verdict, reason, known := MapStatus(r.RawStatus)
	if !known {
		slog.WarnContext(ctx, "unrecognized provider status", "provider", g.provider.Name(), "symbol", symbol,
			"status", r.RawStatus, "mapping_version", StatusMappingVersion)
	}

	source := r.Source
	if source == "" {
		source = g.provider.Name()
	}
	updated := r.ReportDate.UTC()
	if r.ReportDate.IsZero() {
		updated = now
	}

	st := entity.ComplianceStatus{
		Ticker:            symbol,
		IsCompliant:       verdict,
		DataSource:        source,
		LastUpdated:       updated,
		CompanyName:       r.Name,
		PurificationRatio: r.PurificationRatio,
		ComplianceScore:   entity.ScoreFromPurification(r.PurificationRatio),
	}
	switch verdict {
	case entity.VerdictCompliant:
		st.Confidence = entity.ConfidenceHigh
	case entity.VerdictNonCompliant:
		st.Confidence = entity.ConfidenceHigh
		for _, raw := range r.Reasons {
			st.AddReason(entity.ReasonFromProvider(raw))
		}
		if len(st.ExclusionReasons) == 0 {
			st.AddReason(reason)
		}
	default:
		st.Confidence = entity.ConfidenceLow
		st.AddReason(reason)
	}
	return st
}

func (g *Gateway) record(ctx context.Context, symbol string, st entity.ComplianceStatus, now time.Time) {
	if g.audit == nil {
		return
	}
	rec := entity.NewAuditRecord(symbol, symbol, st, entity.StageGateway, now)
	if err := g.audit.Append(ctx, rec); err != nil {
		g.metrics.AuditFailure()
		slog.ErrorContext(ctx, "failed to append audit record", "symbol", symbol, "error", err)
	}
}

func unknownStatus(symbol, source string, now time.Time, reason entity.ReasonCode) entity.ComplianceStatus {
	st := entity.ComplianceStatus{
		Ticker:      symbol,
		IsCompliant: entity.VerdictUnknown,
		Confidence:  entity.ConfidenceLow,
		DataSource:  source,
		LastUpdated: now,
	}
	st.AddReason(reason)
	return st
}

func logDegraded(ctx context.Context, ev DegradedEvent) {
	slog.WarnContext(ctx, "compliance provider unavailable; verdict degraded to unknown",
		"symbol", ev.Symbol, "provider", ev.Provider, "attempts", ev.Attempts, "error", ev.Err)
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	if errors.Is(err, domain.ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isTransient(err):
		return "transient"
	default:
		return "error"
	}
}

type noopRecorder struct{}

func (noopRecorder) ProviderRequest(string, string, time.Duration) {}
func (noopRecorder) ProviderRetry(string)                          {}
func (noopRecorder) RateLimitWait(string, time.Duration)           {}
func (noopRecorder) Verdict(string, string)                        {}
func (noopRecorder) Degraded(string)                               {}
func (noopRecorder) AuditFailure()                                 {}
