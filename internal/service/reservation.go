package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReservationLine is one line item to take out of stock.
type ReservationLine struct {
	ProductID string
	Selector  models.ColorSelector
	Quantity  int
}

// Reservation is the rollback list of a reservation: every deduction made so
// far, in the order it was made. OrderID is the id the order will be saved
// under.
type Reservation struct {
	IntentID   string
	OrderID    string
	Deductions []models.Deduction
}

// StockReserver deducts stock for all lines of an order or for none of them.
// Each reservation is traced by an intent record so that a crash between
// deductions can be rolled back by the recovery worker.
type StockReserver struct {
	inventory *InventoryClient
	intents   IntentRepository
	logger    *zap.Logger
}

func NewStockReserver(inventory *InventoryClient, intents IntentRepository) *StockReserver {
	return &StockReserver{
		inventory: inventory,
		intents:   intents,
		logger:    util.GetLogger(),
	}
}

// Reserve deducts every line in order. On the first failure it restores what
// was already deducted and returns the error that stopped it. The intent
// records orderID up front so recovery can tell whether the order was saved.
func (r *StockReserver) Reserve(ctx context.Context, orderID string, lines []ReservationLine) (*Reservation, error) {
	ctx, span := util.StartSpan(ctx, "StockReserver.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReservationLatency.Observe(time.Since(start).Seconds())
	}()

	now := time.Now().UTC()
	intent := &models.ReservationIntent{
		ID:         uuid.New().String(),
		Status:     models.IntentStatusPending,
		OrderID:    orderID,
		Deductions: models.Deductions{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.intents.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("%w: create reservation intent: %v", ErrPersistence, err)
	}

	res := &Reservation{IntentID: intent.ID, OrderID: orderID}
	for i, line := range lines {
		d, err := r.inventory.Deduct(ctx, line.ProductID, line.Selector, line.Quantity)
		if err != nil {
			r.logger.Warn("Stock reservation failed, rolling back",
				zap.String("intent_id", res.IntentID),
				zap.Int("line", i),
				zap.String("product_id", line.ProductID),
				zap.String("color", line.Selector.String()),
				zap.Error(err))
			r.rollback(ctx, res, "stock")
			util.RecordError(span, err)
			return nil, err
		}

		res.Deductions = append(res.Deductions, *d)
		if err := r.intents.AppendDeduction(ctx, res.IntentID, *d); err != nil {
			r.rollback(ctx, res, "intent")
			return nil, fmt.Errorf("%w: record deduction: %v", ErrPersistence, err)
		}
	}

	r.logger.Debug("Stock reserved",
		zap.String("intent_id", res.IntentID),
		zap.Int("lines", len(res.Deductions)))
	return res, nil
}

// Rollback restores every deduction of a reservation whose order could not be saved.
func (r *StockReserver) Rollback(ctx context.Context, res *Reservation) error {
	return r.rollback(ctx, res, "persistence")
}

func (r *StockReserver) rollback(ctx context.Context, res *Reservation, trigger string) error {
	util.ReservationRollbacksTotal.WithLabelValues(trigger).Inc()

	errs := restoreDeductions(ctx, r.inventory, res.Deductions, r.logger)

	if err := r.intents.MarkIntent(ctx, res.IntentID, models.IntentStatusRolledBack, res.OrderID); err != nil {
		r.logger.Error("Failed to mark reservation intent rolled back",
			zap.String("intent_id", res.IntentID),
			zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Commit marks the reservation as owned by its saved order. A failure is only
// logged: recovery commits any pending intent whose order exists.
func (r *StockReserver) Commit(ctx context.Context, res *Reservation) {
	if err := r.intents.MarkIntent(ctx, res.IntentID, models.IntentStatusCommitted, res.OrderID); err != nil {
		r.logger.Error("Failed to commit reservation intent",
			zap.String("intent_id", res.IntentID),
			zap.String("order_id", res.OrderID),
			zap.Error(err))
	}
}

func restoreDeductions(ctx context.Context, inventory *InventoryClient, deductions []models.Deduction, logger *zap.Logger) []error {
	var errs []error
	for _, d := range deductions {
		if err := inventory.RestoreRef(ctx, d.Ref, d.Quantity); err != nil {
			logger.Error("Failed to restore deducted stock",
				zap.String("product_id", d.Ref.ProductID),
				zap.String("variant_id", d.Ref.VariantID),
				zap.Int("quantity", d.Quantity),
				zap.Int("previous_stock", d.PreviousStock),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}
