package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CategoryType decides the sign of amounts booked against a category.
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
	CategoryTypeDebtIn  CategoryType = "debt_in"
	CategoryTypeDebtOut CategoryType = "debt_out"
)

func (t CategoryType) Valid() bool {
	switch t {
	case CategoryTypeIncome, CategoryTypeExpense, CategoryTypeDebtIn, CategoryTypeDebtOut:
		return true
	default:
		return false
	}
}

// Sign is +1 for money coming in and -1 for money going out.
func (t CategoryType) Sign() int64 {
	switch t {
	case CategoryTypeExpense, CategoryTypeDebtOut:
		return -1
	default:
		return 1
	}
}

// SignedAmount applies the category sign to the magnitude of amount.
func (t CategoryType) SignedAmount(amount int64) int64 {
	if amount < 0 {
		amount = -amount
	}
	return amount * t.Sign()
}

type Category struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	Type      CategoryType `gorm:"type:text;not null"`
	Icon      string       `gorm:"type:text"`
	Color     string       `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Category) TableName() string { return "categories" }

// Transaction is a single ledger row. Amount is in signed minor units.
type Transaction struct {
	ID                     snowflake.ID  `gorm:"primaryKey"`
	CategoryID             snowflake.ID  `gorm:"not null;index"`
	Amount                 int64         `gorm:"not null"`
	Note                   string        `gorm:"type:text"`
	Date                   time.Time     `gorm:"not null;index"`
	RecurringTransactionID *snowflake.ID `gorm:"index"`
	CreatedAt              time.Time     `gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

type CreateTransactionRequest struct {
	CategoryID snowflake.ID `json:"category_id"`
	Amount     int64        `json:"amount"`
	Note       string       `json:"note"`
	Date       time.Time    `json:"date"`
}

type CreateCategoryRequest struct {
	Name  string       `json:"name"`
	Type  CategoryType `json:"type"`
	Icon  string       `json:"icon"`
	Color string       `json:"color"`
}

type ListTransactionFilter struct {
	CategoryID *snowflake.ID
	From       *time.Time
	To         *time.Time
}

type ListTransactionResult struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"next_page_token,omitempty"`
	HasMore       bool          `json:"has_more"`
}

// Summary totals are magnitudes per category type; Net is signed.
type Summary struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Income  int64     `json:"income"`
	Expense int64     `json:"expense"`
	DebtIn  int64     `json:"debt_in"`
	DebtOut int64     `json:"debt_out"`
	Net     int64     `json:"net"`
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
