package service

import (
	"errors"
	"fmt"

	"storefront-orders/internal/models"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrProductNotFound   = errors.New("product or color not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflict")
	ErrPersistence       = errors.New("persistence failure")
	ErrUnauthorized      = errors.New("authentication required")
	ErrForbidden         = errors.New("forbidden")
)

// StockError reports a deduction refused for lack of stock.
type StockError struct {
	ProductID string
	Variant   string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s of product %s (requested %d, available %d)",
		e.Variant, e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// orderStoreError maps repository errors to service errors.
func orderStoreError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, models.ErrVersionConflict), errors.Is(err, models.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
	}
}
