package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository methods take the handle to run on so callers can compose them
// inside their own transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	List(ctx context.Context, db *gorm.DB, filter ListTransactionFilter, page pagination.Pagination) ([]*Transaction, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// DetachRecurring clears the template reference on every row generated
	// from templateID and returns how many rows changed.
	DetachRecurring(ctx context.Context, db *gorm.DB, templateID snowflake.ID) (int64, error)
	ListByRecurring(ctx context.Context, db *gorm.DB, templateID snowflake.ID) ([]*Transaction, error)
	SumByCategoryType(ctx context.Context, db *gorm.DB, from, to time.Time) (map[CategoryType]int64, error)
}
