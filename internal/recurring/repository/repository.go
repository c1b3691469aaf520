package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/internal/recurring/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, t *domain.Template) error {
	return db.WithContext(ctx).Create(t).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Template, error) {
	var t domain.Template
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Template, error) {
	stmt := db.WithContext(ctx).Model(&domain.Template{})
	if filter.UserID != nil {
		stmt = stmt.Where("user_id = ?", *filter.UserID)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}

	var items []*domain.Template
	err := stmt.Order("next_due_date asc, id asc").Find(&items).Error
	return items, err
}

func (r *repo) ListActiveDue(ctx context.Context, db *gorm.DB, through time.Time, lock bool) ([]*domain.Template, error) {
	stmt := db.WithContext(ctx).
		Where("is_active = ? AND next_due_date <= ?", true, through.UTC())
	if lock {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var items []*domain.Template
	err := stmt.Order("next_due_date asc, id asc").Find(&items).Error
	return items, err
}

func (r *repo) UpdateNextDueDate(ctx context.Context, db *gorm.DB, id snowflake.ID, next time.Time, now time.Time) error {
	return r.updateOne(ctx, db, id, map[string]any{
		"next_due_date": next.UTC(),
		"updated_at":    now,
	})
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error {
	return r.updateOne(ctx, db, id, map[string]any{
		"is_active":  active,
		"updated_at": now,
	})
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, t *domain.Template) error {
	return r.updateOne(ctx, db, t.ID, map[string]any{
		"category_id":   t.CategoryID,
		"amount":        t.Amount,
		"note":          t.Note,
		"frequency":     t.Frequency,
		"end_date":      t.EndDate,
		"next_due_date": t.NextDueDate.UTC(),
		"updated_at":    t.UpdatedAt,
	})
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Template{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

func (r *repo) updateOne(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Template{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}
