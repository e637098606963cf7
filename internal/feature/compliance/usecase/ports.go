// Package usecase はコンプライアンス判定（Evaluate）と保守的フィルタ（Filter）を実装します。
package usecase

import (
	"context"
	"time"

	"compliance_screener/internal/feature/compliance/domain/entity"
)

// SymbolNormalizer はティッカーを基底シンボルへ正規化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type SymbolNormalizer interface {
	Valid(ticker string) bool
	Normalize(ticker, exchangeHint, sourceGateway string) entity.NormalizedSymbol
	ExchangeInfo(s string) (entity.ExchangeMapping, bool)
	Exchanges() []entity.ExchangeMapping
}

// ComplianceGateway は基底シンボルの判定結果を返します。
type ComplianceGateway interface {
	Name() string
	Check(ctx context.Context, symbol string) (entity.ComplianceStatus, error)
	Invalidate(ctx context.Context, symbol string) error
}

// AuditQuery は監査ログの検索条件です。
type AuditQuery struct {
	Ticker string
	Stage  entity.AuditStage
	Since  time.Time
	Limit  int
}

// AuditRepository は除外判定の追記専用ログです。
type AuditRepository interface {
	Append(ctx context.Context, rec entity.AuditRecord) error
	List(ctx context.Context, q AuditQuery) ([]entity.AuditRecord, error)
}

// Recorder はフィルタ結果のメトリクスを受け取ります。
type Recorder interface {
	Exclusion(reason string)
	AuditFailure()
}

type noopRecorder struct{}

func (noopRecorder) Exclusion(string) {}
func (noopRecorder) AuditFailure()    {}
