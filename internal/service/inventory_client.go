package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const mirrorTimeout = 5 * time.Second

// InventoryClient is the stock ledger seen by checkout and cancellation. It
// resolves color selectors through the catalog and applies atomic changes
// through the configured ledger backend.
type InventoryClient struct {
	catalog Catalog
	ledger  LedgerBackend
	mirror  StockMirror
	logger  *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(catalog Catalog, ledger LedgerBackend) *InventoryClient {
	return &InventoryClient{
		catalog: catalog,
		ledger:  ledger,
		logger:  util.GetLogger(),
	}
}

// WithMirror copies every stock change into a secondary store, used when the
// ledger lives in Redis and the database keeps a readable copy. Changes are
// applied before Deduct and Restore return.
func (ic *InventoryClient) WithMirror(mirror StockMirror) *InventoryClient {
	ic.mirror = mirror
	return ic
}

// Resolve finds the variant a selector designates and snapshots it.
func (ic *InventoryClient) Resolve(ctx context.Context, productID string, sel models.ColorSelector) (*models.VariantSnapshot, error) {
	product, err := ic.catalog.GetProduct(ctx, productID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: product %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load product %s: %v", ErrPersistence, productID, err)
	}

	variant, ok := product.SelectVariant(sel)
	if !ok {
		return nil, fmt.Errorf("%w: color %q of product %s", ErrProductNotFound, sel.String(), productID)
	}
	return product.Snapshot(variant), nil
}

// CheckAvailability reports whether the variant has at least quantity in stock.
func (ic *InventoryClient) CheckAvailability(ctx context.Context, productID string, sel models.ColorSelector, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.CheckAvailability", attribute.String("product_id", productID))
	defer span.End()

	if quantity < 1 {
		return false, validationError("quantity must be at least 1")
	}

	snap, err := ic.Resolve(ctx, productID, sel)
	if err != nil {
		return false, err
	}

	stock, err := ic.ledger.Available(ctx, snap.Ref)
	if err != nil {
		return false, ic.ledgerError(ctx, err, snap, quantity)
	}
	return stock >= quantity, nil
}

// Deduct removes quantity from the selected variant and returns what was
// deducted, including the stock it had before.
func (ic *InventoryClient) Deduct(ctx context.Context, productID string, sel models.ColorSelector, quantity int) (*models.Deduction, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.Deduct",
		attribute.String("product_id", productID),
		attribute.String("color", sel.String()),
		attribute.Int("quantity", quantity))
	defer span.End()

	if quantity < 1 {
		return nil, validationError("quantity must be at least 1")
	}

	snap, err := ic.Resolve(ctx, productID, sel)
	if err != nil {
		util.StockDeductionsTotal.WithLabelValues("not_found").Inc()
		util.RecordError(span, err)
		return nil, err
	}

	previous, err := ic.ledger.Deduct(ctx, snap.Ref, quantity)
	if err != nil {
		err = ic.ledgerError(ctx, err, snap, quantity)
		util.RecordError(span, err)
		return nil, err
	}

	util.StockDeductionsTotal.WithLabelValues("ok").Inc()
	ic.mirrorStock(ctx, snap.Ref, -quantity)

	return &models.Deduction{
		Ref:           snap.Ref,
		Selector:      snap.ColorName,
		Quantity:      quantity,
		PreviousStock: previous,
	}, nil
}

// Restore adds quantity back to the selected variant and marks it in stock.
func (ic *InventoryClient) Restore(ctx context.Context, productID string, sel models.ColorSelector, quantity int) error {
	snap, err := ic.Resolve(ctx, productID, sel)
	if err != nil {
		return err
	}
	return ic.RestoreRef(ctx, snap.Ref, quantity)
}

// RestoreRef is Restore for an already resolved variant.
func (ic *InventoryClient) RestoreRef(ctx context.Context, ref models.VariantRef, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.Restore",
		attribute.String("product_id", ref.ProductID),
		attribute.String("variant_id", ref.VariantID),
		attribute.Int("quantity", quantity))
	defer span.End()

	if _, err := ic.ledger.Restore(ctx, ref, quantity); err != nil {
		util.StockRestoresFailed.Inc()
		util.RecordError(span, err)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: variant %s/%s", ErrProductNotFound, ref.ProductID, ref.VariantID)
		}
		return fmt.Errorf("%w: restore stock: %v", ErrPersistence, err)
	}

	ic.mirrorStock(ctx, ref, quantity)
	return nil
}

// SyncInventoryToRedis seeds a cache ledger with the catalog's stock.
func (ic *InventoryClient) SyncInventoryToRedis(ctx context.Context, cache InventoryCache) error {
	ic.logger.Info("Starting inventory sync to Redis")

	variants, err := ic.catalog.ListVariants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list variants: %w", err)
	}

	if err := cache.SyncInventory(ctx, variants); err != nil {
		return fmt.Errorf("failed to sync inventory: %w", err)
	}

	ic.logger.Info("Inventory sync completed", zap.Int("count", len(variants)))
	return nil
}

func (ic *InventoryClient) ledgerError(ctx context.Context, err error, snap *models.VariantSnapshot, quantity int) error {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		util.StockDeductionsTotal.WithLabelValues("insufficient").Inc()
		available, availErr := ic.ledger.Available(ctx, snap.Ref)
		if availErr != nil {
			available = 0
		}
		return &StockError{
			ProductID: snap.Ref.ProductID,
			Variant:   snap.ColorName,
			Requested: quantity,
			Available: available,
		}
	case errors.Is(err, models.ErrNotFound):
		util.StockDeductionsTotal.WithLabelValues("not_found").Inc()
		return fmt.Errorf("%w: variant %s/%s", ErrProductNotFound, snap.Ref.ProductID, snap.Ref.VariantID)
	default:
		util.StockDeductionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: stock ledger: %v", ErrPersistence, err)
	}
}

// mirrorStock applies a ledger change to the mirror. The ledger change already
// happened, so a cancelled request must not stop it.
func (ic *InventoryClient) mirrorStock(ctx context.Context, ref models.VariantRef, delta int) {
	if ic.mirror == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	if err := ic.mirror.AdjustVariantStock(ctx, ref, delta); err != nil {
		util.StockMirrorFailures.Inc()
		ic.logger.Error("Failed to mirror stock change to DB",
			zap.String("product_id", ref.ProductID),
			zap.String("variant_id", ref.VariantID),
			zap.Int("delta", delta),
			zap.Error(err))
	}
}
