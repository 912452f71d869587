package service

import (
	"fmt"
	"strings"
	"time"

	"storefront-orders/internal/models"
)

// applyStatusTransition sets the milestone flags and timestamps that go with
// next, then resolves the order status from the flags and appends a history
// entry when that status differs from the last recorded one. It reports
// whether the order was modified.
//
// In strict mode a transition out of a terminal status, or backwards along
// pending > processing > packed > shipped > delivered, is refused and a
// same-status write is a no-op. Forward skips are allowed in both modes. In
// permissive mode a backward request only stamps its milestone: the flags
// already set still win, so the status does not move back.
func applyStatusTransition(order *models.Order, next models.OrderStatus, actor, note string, now time.Time, strict bool) (bool, error) {
	if _, ok := models.ParseOrderStatus(string(next)); !ok {
		return false, validationError("unknown status %q", next)
	}
	note = strings.TrimSpace(note)
	if next == models.OrderStatusCancelled && note == "" {
		return false, validationError("a cancellation reason is required")
	}

	current := order.Status
	if current == "" {
		current = order.DerivedStatus()
	}

	if strict {
		if next == current {
			return false, nil
		}
		if current.IsTerminal() {
			return false, fmt.Errorf("%w: order is %s", ErrInvalidTransition, current)
		}
		if next != models.OrderStatusCancelled && next.Rank() < current.Rank() {
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
		}
	}

	switch next {
	case models.OrderStatusProcessing:
		if !order.IsPaid {
			order.IsPaid = true
		}
		if order.PaidAt == nil {
			order.PaidAt = timePtr(now)
		}
		order.IsProcessing = true
		order.ProcessingAt = timePtr(now)
	case models.OrderStatusPacked:
		order.IsPacked = true
		order.PackedAt = timePtr(now)
	case models.OrderStatusShipped:
		order.IsShipped = true
		order.ShippedAt = timePtr(now)
	case models.OrderStatusDelivered:
		order.IsDelivered = true
		order.DeliveredAt = timePtr(now)
	case models.OrderStatusCancelled:
		order.IsCancelled = true
		order.CancelledAt = timePtr(now)
		order.CancelReason = note
	}

	status := order.DerivedStatus()
	order.Status = status
	order.UpdatedAt = now

	if order.LastRecordedStatus() != status {
		order.StatusHistory = append(order.StatusHistory, models.StatusEntry{
			Status:    status,
			Timestamp: now,
			UpdatedBy: actor,
			Note:      note,
		})
	}
	return true, nil
}

// canCustomerCancel reports whether the order owner may still cancel.
func canCustomerCancel(status models.OrderStatus) bool {
	return status == models.OrderStatusPending || status == models.OrderStatusProcessing
}

func timePtr(t time.Time) *time.Time {
	return &t
}
