package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheEntryModel is the durable row of the SQL tier.
type CacheEntryModel struct {
	Namespace  string    `gorm:"size:64;primaryKey"`
	CacheKey   string    `gorm:"size:255;primaryKey"`
	Payload    []byte    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	TTLSeconds int64     `gorm:"not null;default:0"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

func (CacheEntryModel) TableName() string {
	return "cache_entries"
}

// SQLTier stores entries in a relational table through gorm.
// It is used when Redis is not available.
type SQLTier struct {
	db *gorm.DB
}

var _ Tier = (*SQLTier)(nil)

func NewSQLTier(db *gorm.DB) *SQLTier {
	return &SQLTier{db: db}
}

func (s *SQLTier) Name() string { return "sql" }

func (s *SQLTier) Get(ctx context.Context, ns, key string) (Entry, bool, error) {
	var m CacheEntryModel
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND cache_key = ?", ns, key).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Namespace: m.Namespace,
		Key:       m.CacheKey,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
		TTL:       time.Duration(m.TTLSeconds) * time.Second,
		ExpiresAt: m.ExpiresAt,
	}, true, nil
}

// Set upserts e; the last writer wins.
func (s *SQLTier) Set(ctx context.Context, e Entry) error {
	m := CacheEntryModel{
		Namespace:  e.Namespace,
		CacheKey:   e.Key,
		Payload:    e.Payload,
		CreatedAt:  e.CreatedAt,
		TTLSeconds: int64(e.TTL / time.Second),
		ExpiresAt:  e.ExpiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "created_at", "ttl_seconds", "expires_at"}),
	}).Create(&m).Error
}

func (s *SQLTier) Delete(ctx context.Context, ns, key string) error {
	return s.db.WithContext(ctx).
		Where("namespace = ? AND cache_key = ?", ns, key).
		Delete(&CacheEntryModel{}).Error
}

func (s *SQLTier) DeleteNamespace(ctx context.Context, ns string) error {
	return s.db.WithContext(ctx).
		Where("namespace = ?", ns).
		Delete(&CacheEntryModel{}).Error
}

// PurgeExpired removes rows that expired before now and returns how many were deleted.
func (s *SQLTier) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&CacheEntryModel{})
	return res.RowsAffected, res.Error
}
