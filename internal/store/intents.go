package store

import (
	"context"
	"fmt"
	"time"

	"storefront-orders/internal/models"
)

// CreateIntent records a reservation before its first deduction.
func (s *Store) CreateIntent(ctx context.Context, intent *models.ReservationIntent) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reservation_intents (id, status, order_id, deductions, created_at, updated_at)
		VALUES (:id, :status, :order_id, :deductions, :created_at, :updated_at)`, intent)
	if err != nil {
		return fmt.Errorf("failed to create reservation intent: %w", err)
	}
	return nil
}

// AppendDeduction records one successful deduction on a pending intent.
func (s *Store) AppendDeduction(ctx context.Context, intentID string, d models.Deduction) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reservation_intents
		SET deductions = deductions || $1::jsonb, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'`,
		models.Deductions{d}, intentID)
	if err != nil {
		return fmt.Errorf("failed to record deduction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pending intent %s", ErrNotFound, intentID)
	}
	return nil
}

// MarkIntent moves a pending intent to committed or rolled_back.
func (s *Store) MarkIntent(ctx context.Context, intentID, status, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reservation_intents
		SET status = $1, order_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'pending'`,
		status, orderID, intentID)
	if err != nil {
		return fmt.Errorf("failed to mark intent %s: %w", status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pending intent %s", ErrNotFound, intentID)
	}
	return nil
}

// ListStaleIntents returns pending intents created before the cutoff, oldest first.
func (s *Store) ListStaleIntents(ctx context.Context, before time.Time, limit int) ([]models.ReservationIntent, error) {
	intents := []models.ReservationIntent{}
	err := s.db.SelectContext(ctx, &intents, `
		SELECT id, status, order_id, deductions, created_at, updated_at
		FROM reservation_intents
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, before, limit)
	return intents, err
}
