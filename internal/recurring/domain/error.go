package domain

import "errors"

var (
	ErrTemplateNotFound = errors.New("recurring transaction not found")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidAmount    = errors.New("amount must not be zero")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidStartDate = errors.New("invalid start date")
	ErrInvalidEndDate   = errors.New("end date must not be before start date")
	ErrInvalidDueDate   = errors.New("next due date must not be before start date")
	ErrInvalidHorizon   = errors.New("horizon must not be negative")
)
