package domain

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrCategoryExists      = errors.New("category already exists")
	ErrInvalidCategory     = errors.New("invalid category")
	ErrInvalidCategoryType = errors.New("invalid category type")
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidAmount       = errors.New("amount must not be zero")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidRange        = errors.New("invalid date range")
	ErrInvalidPageToken    = errors.New("invalid page token")
)
