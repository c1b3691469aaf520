package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/fintrack/internal/license/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) GetByKey(ctx context.Context, key string) (*domain.Record, error) {
	var record domain.Record
	err := r.db.WithContext(ctx).
		Where("license_key = ?", strings.TrimSpace(key)).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert replaces any row for the key. Concurrent writers for the same key
// race and the last commit wins.
func (r *repo) Upsert(ctx context.Context, record *domain.Record) error {
	if record == nil || strings.TrimSpace(record.LicenseKey) == "" {
		return domain.ErrNoLicenseKey
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("license_key = ?", record.LicenseKey).Delete(&domain.Record{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
}

func (r *repo) DeleteByKey(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("license_key = ?", strings.TrimSpace(key)).
		Delete(&domain.Record{}).Error
}

func (r *repo) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.Record{}).Error
}
