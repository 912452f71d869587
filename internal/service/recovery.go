package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"go.uber.org/zap"
)

const (
	recoveryLockKey   = "reservation-recovery"
	recoveryBatchSize = 100
)

// RecoveryService rolls back reservations left pending by a process that
// stopped between deducting stock and saving the order.
type RecoveryService struct {
	intents   IntentRepository
	orders    OrderRepository
	inventory *InventoryClient
	locker    Locker
	ttl       time.Duration
	logger    *zap.Logger
}

func NewRecoveryService(intents IntentRepository, orders OrderRepository, inventory *InventoryClient, locker Locker, ttl time.Duration) *RecoveryService {
	return &RecoveryService{
		intents:   intents,
		orders:    orders,
		inventory: inventory,
		locker:    locker,
		ttl:       ttl,
		logger:    util.GetLogger(),
	}
}

// RecoverStaleIntents restores the deductions of pending intents older than
// the TTL and returns how many intents it rolled back. An intent whose order
// was saved is committed instead: the stock belongs to that order. An intent
// is claimed by marking it rolled back before its stock is restored, so a
// concurrent commit or a second recovery run can never restore it twice.
func (rs *RecoveryService) RecoverStaleIntents(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "RecoveryService.RecoverStaleIntents")
	defer span.End()

	acquired, err := rs.locker.AcquireLock(ctx, recoveryLockKey, rs.ttl)
	if err != nil {
		return 0, fmt.Errorf("acquire recovery lock: %w", err)
	}
	if !acquired {
		return 0, nil
	}
	defer func() {
		if err := rs.locker.ReleaseLock(context.Background(), recoveryLockKey); err != nil {
			rs.logger.Warn("Failed to release recovery lock", zap.Error(err))
		}
	}()

	stale, err := rs.intents.ListStaleIntents(ctx, time.Now().UTC().Add(-rs.ttl), recoveryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale intents: %w", err)
	}

	recovered := 0
	var errs []error
	for _, intent := range stale {
		saved, err := rs.orderSaved(ctx, intent)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if saved {
			if err := rs.intents.MarkIntent(ctx, intent.ID, models.IntentStatusCommitted, intent.OrderID); err != nil && !errors.Is(err, models.ErrNotFound) {
				errs = append(errs, err)
				continue
			}
			rs.logger.Info("Committed stale reservation of a saved order",
				zap.String("intent_id", intent.ID),
				zap.String("order_id", intent.OrderID))
			continue
		}

		if err := rs.intents.MarkIntent(ctx, intent.ID, models.IntentStatusRolledBack, intent.OrderID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}

		errs = append(errs, restoreDeductions(ctx, rs.inventory, intent.Deductions, rs.logger)...)
		recovered++
		util.RecoveredIntentsTotal.Inc()
		util.ReservationRollbacksTotal.WithLabelValues("recovery").Inc()

		rs.logger.Warn("Rolled back stale reservation",
			zap.String("intent_id", intent.ID),
			zap.Time("created_at", intent.CreatedAt),
			zap.Int("deductions", len(intent.Deductions)))
	}

	err = errors.Join(errs...)
	util.RecordError(span, err)
	return recovered, err
}

func (rs *RecoveryService) orderSaved(ctx context.Context, intent models.ReservationIntent) (bool, error) {
	if intent.OrderID == "" {
		return false, nil
	}
	_, err := rs.orders.GetOrderByID(ctx, intent.OrderID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("look up order %s of intent %s: %w", intent.OrderID, intent.ID, err)
	}
}
