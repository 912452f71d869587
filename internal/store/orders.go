package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-orders/internal/models"
)

const orderColumns = `id, order_number, user_id, is_guest_order, order_items, shipping_address,
	payment_method, payment_result, items_price, shipping_price, total_price, status,
	is_paid, paid_at, is_processing, processing_at, is_packed, packed_at, is_shipped, shipped_at,
	is_delivered, delivered_at, is_cancelled, cancelled_at, cancel_reason,
	status_history, admin_notes, idempotency_key, version, created_at, updated_at`

// CreateOrder inserts a new order. A reused idempotency key or order number
// yields ErrDuplicate.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (:id, :order_number, :user_id, :is_guest_order, :order_items, :shipping_address,
			:payment_method, :payment_result, :items_price, :shipping_price, :total_price, :status,
			:is_paid, :paid_at, :is_processing, :processing_at, :is_packed, :packed_at, :is_shipped, :shipped_at,
			:is_delivered, :delivered_at, :is_cancelled, :cancelled_at, :cancel_reason,
			:status_history, :admin_notes, :idempotency_key, :version, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, query, order); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return s.getOrder(ctx, "id", id)
}

// GetOrderByNumber retrieves an order by its human-facing number
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.getOrder(ctx, "order_number", orderNumber)
}

// GetOrderByIdempotencyKey returns nil, nil when no order carries the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	order, err := s.getOrder(ctx, "idempotency_key", key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return order, err
}

func (s *Store) getOrder(ctx context.Context, column, value string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE "+column+" = $1", value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s=%s", ErrNotFound, column, value)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderState writes the lifecycle fields of an order if nobody changed
// it since it was read. On success order.Version is advanced.
func (s *Store) UpdateOrderState(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders SET
			status = :status,
			is_paid = :is_paid, paid_at = :paid_at,
			is_processing = :is_processing, processing_at = :processing_at,
			is_packed = :is_packed, packed_at = :packed_at,
			is_shipped = :is_shipped, shipped_at = :shipped_at,
			is_delivered = :is_delivered, delivered_at = :delivered_at,
			is_cancelled = :is_cancelled, cancelled_at = :cancelled_at,
			cancel_reason = :cancel_reason,
			payment_result = :payment_result,
			status_history = :status_history,
			version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`

	res, err := s.db.NamedExecContext(ctx, query, order)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", order.ID); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: order %s", ErrNotFound, order.ID)
		}
		return fmt.Errorf("%w: order %s at version %d", ErrConflict, order.ID, order.Version)
	}
	order.Version++
	return nil
}

// AppendAdminNote adds a staff note without touching the status history.
func (s *Store) AppendAdminNote(ctx context.Context, orderID string, note models.AdminNote) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET admin_notes = admin_notes || $1::jsonb, updated_at = NOW() WHERE id = $2",
		models.AdminNotes{note}, orderID)
	if err != nil {
		return fmt.Errorf("failed to append admin note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// ListOrders pages through all orders, optionally restricted to one status.
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	orders := []models.Order{}
	var err error
	if filter.Status != "" {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			filter.Status, filter.Limit, filter.Offset)
	} else {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2",
			filter.Limit, filter.Offset)
	}
	return orders, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
