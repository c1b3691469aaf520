package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/pkg/db/pagination"
)

type Service interface {
	Insert(ctx context.Context, req CreateTransactionRequest) (*Transaction, error)
	DetachRecurring(ctx context.Context, templateID snowflake.ID) (int64, error)
	List(ctx context.Context, filter ListTransactionFilter, page pagination.Pagination) (*ListTransactionResult, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Transaction, error)
	Delete(ctx context.Context, id snowflake.ID) error

	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (*Category, error)
	FindCategory(ctx context.Context, id snowflake.ID) (*Category, error)

	Summary(ctx context.Context, from, to time.Time) (*Summary, error)
}
