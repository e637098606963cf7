package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
)

const (
	// DefaultConcurrency はFilterの同時評価数のデフォルトです。
	DefaultConcurrency = 8
	// DefaultAuditLimit は監査ログ検索のデフォルト件数です。
	DefaultAuditLimit = 100
	// MaxAuditLimit は監査ログ検索の最大件数です。
	MaxAuditLimit = 1000
)

// DataSourceValidation marks verdicts produced by input validation, before any provider call.
const DataSourceValidation = "validation"

// Config は判定ポリシーの設定です。
type Config struct {
	// MinConfidence は保守的フィルタで通過に必要な最低信頼度です（MEDIUM または HIGH）。
	MinConfidence entity.Confidence
	// Concurrency はFilterの同時評価数です。
	Concurrency int
}

// complianceUsecase は正規化・ゲートウェイ・監査ログを組み合わせたユースケースです。
type complianceUsecase struct {
	normalizer    SymbolNormalizer
	gateway       ComplianceGateway
	audit         AuditRepository
	minConfidence entity.Confidence
	concurrency   int
	metrics       Recorder
	now           func() time.Time
}

// Option はcomplianceUsecaseの設定を変更します。
type Option func(*complianceUsecase)

// WithRecorder はメトリクスの送信先を設定します。
func WithRecorder(r Recorder) Option {
	return func(u *complianceUsecase) {
		if r != nil {
			u.metrics = r
		}
	}
}

// WithClock は監査レコードの時刻源を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(u *complianceUsecase) { u.now = now }
}

// NewComplianceUsecase はcomplianceUsecaseの新しいインスタンスを生成します。
// audit は nil でもよく、その場合フィルタ段階の監査記録は行いません。
func NewComplianceUsecase(n SymbolNormalizer, g ComplianceGateway, audit AuditRepository, cfg Config, opts ...Option) (*complianceUsecase, error) {
	if n == nil || g == nil {
		return nil, fmt.Errorf("%w: usecase needs a normalizer and a gateway", domain.ErrConfiguration)
	}
	if cfg.MinConfidence < entity.ConfidenceMedium {
		return nil, fmt.Errorf("%w: minimum confidence must be MEDIUM or HIGH, got %s", domain.ErrConfiguration, cfg.MinConfidence)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	u := &complianceUsecase{
		normalizer:    n,
		gateway:       g,
		audit:         audit,
		minConfidence: cfg.MinConfidence,
		concurrency:   cfg.Concurrency,
		metrics:       noopRecorder{},
		now:           time.Now,
	}
	for _, o := range opts {
		o(u)
	}
	return u, nil
}

// Evaluate はティッカーを正規化し、基底シンボルの判定に正規化情報を付与して返します。
// 信頼度は正規化とゲートウェイの低い方になります。
// 不正なティッカーは domain.ErrInvalidTicker を返します。
func (u *complianceUsecase) Evaluate(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error) {
	if !u.normalizer.Valid(ticker) {
		return entity.ComplianceStatus{}, fmt.Errorf("%w: %q", domain.ErrInvalidTicker, ticker)
	}

	ns := u.normalizer.Normalize(ticker, exchangeHint, u.gateway.Name())
	st, err := u.gateway.Check(ctx, ns.BaseSymbol)
	if err != nil {
		return entity.ComplianceStatus{}, err
	}

	// ゲートウェイの結果は複数の呼び出し元で共有されるため複製する
	st.ExclusionReasons = slices.Clone(st.ExclusionReasons)
	st.Ticker = strings.ToUpper(strings.TrimSpace(ticker))
	st.Confidence = entity.MinConfidence(ns.Confidence, st.Confidence)
	st.NormalizedFrom = &ns
	return st, nil
}

// Filter はリストを評価し、保守的ポリシーで通過分と除外分に振り分けます。
//
// 通過条件:
//   - conservative: 判定が Compliant かつ信頼度が MinConfidence 以上
//   - 非conservative: 判定が Compliant（信頼度は問わない）
//
// Unknown と NonCompliant はどちらのモードでも除外されます。
// 1銘柄の失敗でバッチは止まりません。設定エラーとキャンセルのみ中断します。
func (u *complianceUsecase) Filter(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error) {
	statuses := make([]entity.ComplianceStatus, len(listings))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(u.concurrency)
	for i, l := range listings {
		eg.Go(func() error {
			st, err := u.Evaluate(egCtx, l.Ticker, l.Exchange)
			if errors.Is(err, domain.ErrInvalidTicker) {
				st = invalidStatus(l.Ticker, u.now())
				err = nil
			}
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", l.Ticker, err)
			}
			statuses[i] = st
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := &entity.FilterResult{
		Compliant:    []entity.ComplianceStatus{},
		Excluded:     []entity.Exclusion{},
		Conservative: conservative,
	}
	now := u.now()
	for _, st := range statuses {
		res.Summary.Total++
		switch st.IsCompliant {
		case entity.VerdictNonCompliant:
			res.Summary.NonCompliant++
		case entity.VerdictUnknown:
			res.Summary.Unknown++
		}

		if u.passes(st, conservative) {
			res.Summary.Compliant++
			res.Compliant = append(res.Compliant, st)
			continue
		}

		ex := u.exclude(st)
		res.Summary.Excluded++
		res.Excluded = append(res.Excluded, ex)
		u.record(ctx, st, ex, now)
	}

	slog.InfoContext(ctx, "compliance filter completed",
		"total", res.Summary.Total,
		"compliant", res.Summary.Compliant,
		"non_compliant", res.Summary.NonCompliant,
		"unknown", res.Summary.Unknown,
		"excluded", res.Summary.Excluded,
		"conservative", conservative,
	)
	return res, nil
}

// Audit は監査ログを新しい順に返します。
func (u *complianceUsecase) Audit(ctx context.Context, q AuditQuery) ([]entity.AuditRecord, error) {
	if u.audit == nil {
		return []entity.AuditRecord{}, nil
	}
	if q.Limit <= 0 {
		q.Limit = DefaultAuditLimit
	}
	q.Limit = min(q.Limit, MaxAuditLimit)
	q.Ticker = strings.ToUpper(strings.TrimSpace(q.Ticker))
	return u.audit.List(ctx, q)
}

// Exchanges は対応取引所の一覧を返します。
func (u *complianceUsecase) Exchanges() []entity.ExchangeMapping {
	return u.normalizer.Exchanges()
}

// ExchangeInfo はサフィックス・MICコード・別名から取引所を引きます。
func (u *complianceUsecase) ExchangeInfo(s string) (entity.ExchangeMapping, bool) {
	return u.normalizer.ExchangeInfo(s)
}

// Purge はティッカーのキャッシュを削除します。空文字の場合は全件削除します。
func (u *complianceUsecase) Purge(ctx context.Context, ticker string) error {
	if strings.TrimSpace(ticker) == "" {
		return u.gateway.Invalidate(ctx, "")
	}
	if !u.normalizer.Valid(ticker) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTicker, ticker)
	}
	ns := u.normalizer.Normalize(ticker, "", u.gateway.Name())
	return u.gateway.Invalidate(ctx, ns.BaseSymbol)
}

func (u *complianceUsecase) passes(st entity.ComplianceStatus, conservative bool) bool {
	if st.IsCompliant != entity.VerdictCompliant {
		return false
	}
	return !conservative || st.Confidence >= u.minConfidence
}

// exclude builds the exclusion entry. Unknown and under-confident verdicts
// carry UNVERIFIED; non-compliant verdicts keep the provider's reasons.
func (u *complianceUsecase) exclude(st entity.ComplianceStatus) entity.Exclusion {
	reasons := entity.ComplianceStatus{ExclusionReasons: slices.Clone(st.ExclusionReasons)}
	ex := entity.Exclusion{Status: st}

	switch st.IsCompliant {
	case entity.VerdictUnknown:
		reasons.AddReason(entity.ReasonUnverified)
		ex.Label = entity.UnknownLabel
	case entity.VerdictNonCompliant:
		if len(reasons.ExclusionReasons) == 0 {
			reasons.AddReason(entity.ReasonNonCompliant)
		}
		if st.Confidence < u.minConfidence {
			reasons.AddReason(entity.ReasonUnverified)
		}
	default:
		// compliant but under-confident
		reasons.AddReason(entity.ReasonUnverified)
	}
	ex.Reasons = reasons.ExclusionReasons
	return ex
}

func (u *complianceUsecase) record(ctx context.Context, st entity.ComplianceStatus, ex entity.Exclusion, now time.Time) {
	for _, r := range ex.Reasons {
		u.metrics.Exclusion(string(r))
	}
	if u.audit == nil {
		return
	}

	base := st.Ticker
	if st.NormalizedFrom != nil {
		base = st.NormalizedFrom.BaseSymbol
	}
	audited := st
	audited.ExclusionReasons = ex.Reasons
	rec := entity.NewAuditRecord(st.Ticker, base, audited, entity.StageFilter, now)
	if err := u.audit.Append(ctx, rec); err != nil {
		u.metrics.AuditFailure()
		slog.ErrorContext(ctx, "failed to append audit record", "ticker", st.Ticker, "error", err)
	}
}

func invalidStatus(ticker string, now time.Time) entity.ComplianceStatus {
	st := entity.ComplianceStatus{
		Ticker:      strings.ToUpper(strings.TrimSpace(ticker)),
		IsCompliant: entity.VerdictUnknown,
		Confidence:  entity.ConfidenceLow,
		DataSource:  DataSourceValidation,
		LastUpdated: now.UTC(),
	}
	st.AddReason(entity.ReasonInvalidTicker)
	return st
}
