package service

import (
	"context"
	"fmt"
)

// OrderNumberSequence is the counter name order numbers are drawn from.
const OrderNumberSequence = "order_number"

// DefaultOrderNumberWidth pads order numbers to six digits.
const DefaultOrderNumberWidth = 6

// SequenceGenerator issues unique, zero-padded order numbers. Numbers burnt
// by a failed checkout are not reused.
type SequenceGenerator struct {
	backend SequenceBackend
	width   int
}

func NewSequenceGenerator(backend SequenceBackend, width int) *SequenceGenerator {
	if width < 1 {
		width = DefaultOrderNumberWidth
	}
	return &SequenceGenerator{backend: backend, width: width}
}

// NextOrderNumber increments the counter and formats the new value.
func (g *SequenceGenerator) NextOrderNumber(ctx context.Context) (string, error) {
	value, err := g.backend.NextSequence(ctx, OrderNumberSequence)
	if err != nil {
		return "", fmt.Errorf("%w: next order number: %v", ErrPersistence, err)
	}
	return FormatOrderNumber(value, g.width), nil
}

// FormatOrderNumber left-pads value with zeros to width digits. Wider values
// are printed in full.
func FormatOrderNumber(value int64, width int) string {
	return fmt.Sprintf("%0*d", width, value)
}
