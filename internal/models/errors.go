package models

import "errors"

// Storage errors shared by every backend.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVersionConflict   = errors.New("version conflict")
	ErrDuplicate         = errors.New("duplicate key")
)
