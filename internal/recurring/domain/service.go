package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateTemplateRequest) (*Template, error)
	Get(ctx context.Context, id snowflake.ID) (*Template, error)
	List(ctx context.Context, filter ListFilter) ([]Template, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateTemplateRequest) (*Template, error)

	// ListDue is read-only and backs the upcoming view.
	ListDue(ctx context.Context, asOf time.Time, horizonDays int) ([]Template, error)
	// ProcessDue materializes every template due on or before today in one
	// transaction. On failure nothing is committed and it returns 0.
	ProcessDue(ctx context.Context, today time.Time) (int, error)
	ToggleActive(ctx context.Context, id snowflake.ID) (*Template, error)
	Delete(ctx context.Context, id snowflake.ID) error
}
