package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
)

// AuditModel is the GORM model for the compliance_audit table.
type AuditModel struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Ticker     string    `gorm:"index:idx_audit_ticker_time,priority:1;size:32;not null"`
	BaseSymbol string    `gorm:"size:32;not null"`
	Verdict    int8      `gorm:"not null"`
	Reasons    string    `gorm:"type:text"`
	Confidence string    `gorm:"size:8;not null"`
	DataSource string    `gorm:"size:64"`
	Stage      string    `gorm:"index;size:16;not null"`
	RecordedAt time.Time `gorm:"index:idx_audit_ticker_time,priority:2;not null"`
}

// TableName returns the table name for GORM.
func (AuditModel) TableName() string {
	return "compliance_audit"
}

// ToEntity converts the GORM model to a domain entity.
// A row whose id is not a UUID is reported as domain.ErrDataQuality.
func (m *AuditModel) ToEntity() (entity.AuditRecord, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return entity.AuditRecord{}, fmt.Errorf("%w: audit row id %q: %v", domain.ErrDataQuality, m.ID, err)
	}
	rec := entity.AuditRecord{
		ID:         id,
		Ticker:     m.Ticker,
		BaseSymbol: m.BaseSymbol,
		Verdict:    entity.Verdict(m.Verdict),
		Reasons:    []entity.ReasonCode{},
		DataSource: m.DataSource,
		Stage:      entity.AuditStage(m.Stage),
		RecordedAt: m.RecordedAt.UTC(),
	}
	if c, err := entity.ParseConfidence(m.Confidence); err == nil {
		rec.Confidence = c
	}
	for _, r := range strings.Split(m.Reasons, ",") {
		if r != "" {
			rec.Reasons = append(rec.Reasons, entity.ReasonCode(r))
		}
	}
	return rec, nil
}

// AuditModelFromEntity converts a domain entity to a GORM model.
func AuditModelFromEntity(r entity.AuditRecord) *AuditModel {
	reasons := make([]string, len(r.Reasons))
	for i, c := range r.Reasons {
		reasons[i] = string(c)
	}
	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &AuditModel{
		ID:         id.String(),
		Ticker:     r.Ticker,
		BaseSymbol: r.BaseSymbol,
		Verdict:    int8(r.Verdict),
		Reasons:    strings.Join(reasons, ","),
		Confidence: r.Confidence.String(),
		DataSource: r.DataSource,
		Stage:      string(r.Stage),
		RecordedAt: r.RecordedAt.UTC(),
	}
}
