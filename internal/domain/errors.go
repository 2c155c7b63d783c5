package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidAllocation = errors.New("invalid capital allocation")
	ErrInvalidLeverage   = errors.New("leverage out of range")
	ErrInvalidSlot       = errors.New("invalid position slot")
	ErrInvalidQuote      = errors.New("invalid quote")
)
