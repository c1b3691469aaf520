package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func ParseFrequency(raw string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(raw)))
	if !f.Valid() {
		return "", ErrInvalidFrequency
	}
	return f, nil
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// Advance moves from by exactly one period. Month and year steps use
// time.AddDate, so 2024-01-31 plus one month normalizes to 2024-03-02.
func (f Frequency) Advance(from time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	case FrequencyYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from
	}
}

// Template describes a ledger transaction that repeats every Frequency.
type Template struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID `gorm:"not null;index" json:"user_id"`
	CategoryID  snowflake.ID `gorm:"not null" json:"category_id"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Note        string       `gorm:"type:text" json:"note"`
	Frequency   Frequency    `gorm:"type:text;not null" json:"frequency"`
	StartDate   time.Time    `gorm:"not null" json:"start_date"`
	EndDate     *time.Time   `json:"end_date,omitempty"`
	NextDueDate time.Time    `gorm:"not null;index" json:"next_due_date"`
	IsActive    bool         `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Template) TableName() string { return "recurring_transactions" }

// EndsBefore reports whether the template window closes before day.
func (t Template) EndsBefore(day time.Time) bool {
	return t.EndDate != nil && t.EndDate.Before(day)
}

const (
	autoNoteSuffix = " (auto)"
	autoNoteEmpty  = "Recurring transaction (auto)"
)

// MaterializedNote is the note written on generated ledger rows.
func (t Template) MaterializedNote() string {
	note := strings.TrimSpace(t.Note)
	if note == "" {
		return autoNoteEmpty
	}
	return note + autoNoteSuffix
}

type CreateTemplateRequest struct {
	UserID      snowflake.ID `json:"-"`
	CategoryID  snowflake.ID `json:"category_id"`
	Amount      int64        `json:"amount"`
	Note        string       `json:"note"`
	Frequency   string       `json:"frequency"`
	StartDate   time.Time    `json:"start_date"`
	EndDate     *time.Time   `json:"end_date,omitempty"`
	NextDueDate *time.Time   `json:"next_due_date,omitempty"`
}

// UpdateTemplateRequest changes only the fields that are set.
type UpdateTemplateRequest struct {
	CategoryID  *snowflake.ID `json:"category_id,omitempty"`
	Amount      *int64        `json:"amount,omitempty"`
	Note        *string       `json:"note,omitempty"`
	Frequency   *string       `json:"frequency,omitempty"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	ClearEnd    bool          `json:"clear_end_date,omitempty"`
	NextDueDate *time.Time    `json:"next_due_date,omitempty"`
}

type ListFilter struct {
	UserID     *snowflake.ID
	ActiveOnly bool
}
