package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuditStage names the pipeline step that recorded an exclusion.
type AuditStage string

const (
	StageGateway AuditStage = "gateway"
	StageFilter  AuditStage = "filter"
)

// AuditRecord is one append-only entry of the exclusion log.
type AuditRecord struct {
	ID         uuid.UUID    `json:"id"`
	Ticker     string       `json:"ticker"`
	BaseSymbol string       `json:"base_symbol"`
	Verdict    Verdict      `json:"is_compliant"`
	Reasons    []ReasonCode `json:"reason_codes"`
	Confidence Confidence   `json:"confidence"`
	DataSource string       `json:"data_source"`
	Stage      AuditStage   `json:"stage"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// NewAuditRecord builds a record from a verdict.
func NewAuditRecord(ticker, base string, st ComplianceStatus, stage AuditStage, at time.Time) AuditRecord {
	reasons := make([]ReasonCode, len(st.ExclusionReasons))
	copy(reasons, st.ExclusionReasons)
	return AuditRecord{
		ID:         uuid.New(),
		Ticker:     ticker,
		BaseSymbol: base,
		Verdict:    st.IsCompliant,
		Reasons:    reasons,
		Confidence: st.Confidence,
		DataSource: st.DataSource,
		Stage:      stage,
		RecordedAt: at.UTC(),
	}
}
