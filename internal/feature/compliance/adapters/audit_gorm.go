// Package adapters provides repository implementations for the compliance feature.
package adapters

import (
	"context"

	"gorm.io/gorm"

	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/gateway"
	"compliance_screener/internal/feature/compliance/usecase"
)

// auditGorm is a GORM implementation of the AuditRepository interface.
// Records are only ever inserted.
type auditGorm struct {
	db *gorm.DB
}

// Compile-time checks for both consumers of the audit log.
var (
	_ usecase.AuditRepository = (*auditGorm)(nil)
	_ gateway.AuditLog        = (*auditGorm)(nil)
)

// NewAuditRepository creates a new instance of auditGorm.
func NewAuditRepository(db *gorm.DB) *auditGorm {
	return &auditGorm{db: db}
}

// Append persists one audit record.
func (r *auditGorm) Append(ctx context.Context, rec entity.AuditRecord) error {
	return r.db.WithContext(ctx).Create(AuditModelFromEntity(rec)).Error
}

// List returns records newest first, filtered by q.
func (r *auditGorm) List(ctx context.Context, q usecase.AuditQuery) ([]entity.AuditRecord, error) {
	tx := r.db.WithContext(ctx).Model(&AuditModel{})
	if q.Ticker != "" {
		tx = tx.Where("ticker = ?", q.Ticker)
	}
	if q.Stage != "" {
		tx = tx.Where("stage = ?", string(q.Stage))
	}
	if !q.Since.IsZero() {
		tx = tx.Where("recorded_at >= ?", q.Since.UTC())
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var models []AuditModel
	if err := tx.Order("recorded_at DESC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]entity.AuditRecord, len(models))
	for i := range models {
		rec, err := models[i].ToEntity()
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}
