package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/internal/ledger/domain"
	"github.com/smallbiznis/fintrack/pkg/db/option"
	"github.com/smallbiznis/fintrack/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListTransactionFilter, page pagination.Pagination) ([]*domain.Transaction, error) {
	stmt := db.WithContext(ctx).Model(&domain.Transaction{})
	if filter.CategoryID != nil {
		stmt = stmt.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.From != nil {
		stmt = stmt.Where("date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("date < ?", filter.To.UTC())
	}
	if page.PageToken != "" {
		date, id, err := decodeToken(page.PageToken)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(date < ?) OR (date = ? AND id < ?)", date, date, id)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)

	var txs []*domain.Transaction
	if err := stmt.Order("date desc, id desc").Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Transaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *repo) DetachRecurring(ctx context.Context, db *gorm.DB, templateID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("recurring_transaction_id = ?", templateID).
		Update("recurring_transaction_id", nil)
	return res.RowsAffected, res.Error
}

func (r *repo) ListByRecurring(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	err := db.WithContext(ctx).
		Where("recurring_transaction_id = ?", templateID).
		Order("date asc, id asc").
		Find(&txs).Error
	return txs, err
}

func (r *repo) SumByCategoryType(ctx context.Context, db *gorm.DB, from, to time.Time) (map[domain.CategoryType]int64, error) {
	var rows []struct {
		Type  domain.CategoryType
		Total int64
	}
	err := db.WithContext(ctx).
		Table("transactions").
		Select("categories.type AS type, COALESCE(SUM(transactions.amount), 0) AS total").
		Joins("JOIN categories ON categories.id = transactions.category_id").
		Where("transactions.date >= ? AND transactions.date < ?", from.UTC(), to.UTC()).
		Group("categories.type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[domain.CategoryType]int64, len(rows))
	for _, row := range rows {
		totals[row.Type] = row.Total
	}
	return totals, nil
}

// EncodeToken builds the page token that resumes listing after tx.
func EncodeToken(tx *domain.Transaction) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:  tx.ID.String(),
		Key: tx.Date.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeToken(token string) (time.Time, snowflake.ID, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return time.Time{}, 0, domain.ErrInvalidPageToken
	}
	date, err := time.Parse(time.RFC3339Nano, cursor.Key)
	if err != nil {
		return time.Time{}, 0, domain.ErrInvalidPageToken
	}
	id, err := strconv.ParseInt(cursor.ID, 10, 64)
	if err != nil {
		return time.Time{}, 0, domain.ErrInvalidPageToken
	}
	return date.UTC(), snowflake.ID(id), nil
}
