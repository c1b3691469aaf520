package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, t *Template) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Template, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Template, error)
	// ListActiveDue returns active templates due on or before through,
	// oldest first. lock claims the rows for the surrounding transaction.
	ListActiveDue(ctx context.Context, db *gorm.DB, through time.Time, lock bool) ([]*Template, error)
	UpdateNextDueDate(ctx context.Context, db *gorm.DB, id snowflake.ID, next time.Time, now time.Time) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error
	Update(ctx context.Context, db *gorm.DB, t *Template) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
