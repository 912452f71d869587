package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-orders/internal/models"
)

const variantColumns = "id, product_id, position, name, code, price, stock, in_stock, updated_at"

// GetProduct loads a product with its color variants ordered by position.
func (s *Store) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT id, name, base_price, created_at FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &product.Colors,
		"SELECT "+variantColumns+" FROM product_variants WHERE product_id = $1 ORDER BY position, id", productID)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListVariants returns every color variant, used to seed the Redis ledger.
func (s *Store) ListVariants(ctx context.Context) ([]models.ColorVariant, error) {
	var variants []models.ColorVariant
	err := s.db.SelectContext(ctx, &variants,
		"SELECT "+variantColumns+" FROM product_variants ORDER BY product_id, position")
	return variants, err
}

// Available returns the current stock of a variant.
func (s *Store) Available(ctx context.Context, ref models.VariantRef) (int, error) {
	var stock int
	err := s.db.GetContext(ctx, &stock,
		"SELECT stock FROM product_variants WHERE product_id = $1 AND id = $2", ref.ProductID, ref.VariantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	return stock, err
}

// Deduct atomically removes quantity from a variant and returns the stock it
// had before. The conditional update never lets stock go negative and keeps
// in_stock equal to stock > 0.
func (s *Store) Deduct(ctx context.Context, ref models.VariantRef, quantity int) (int, error) {
	var previous int
	err := s.db.GetContext(ctx, &previous, `
		UPDATE product_variants
		SET stock = stock - $1, in_stock = (stock - $1) > 0, updated_at = NOW()
		WHERE product_id = $2 AND id = $3 AND stock >= $1
		RETURNING stock + $1`,
		quantity, ref.ProductID, ref.VariantID)
	if err == nil {
		return previous, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to deduct stock: %w", err)
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM product_variants WHERE product_id = $1 AND id = $2)",
		ref.ProductID, ref.VariantID); err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	return 0, fmt.Errorf("%w: variant %s/%s", ErrInsufficientStock, ref.ProductID, ref.VariantID)
}

// Restore adds quantity back to a variant and marks it in stock.
// Returns the resulting stock.
func (s *Store) Restore(ctx context.Context, ref models.VariantRef, quantity int) (int, error) {
	var remaining int
	err := s.db.GetContext(ctx, &remaining, `
		UPDATE product_variants
		SET stock = stock + $1, in_stock = TRUE, updated_at = NOW()
		WHERE product_id = $2 AND id = $3
		RETURNING stock`,
		quantity, ref.ProductID, ref.VariantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to restore stock: %w", err)
	}
	return remaining, nil
}

// AdjustVariantStock shifts the stored stock of a variant by delta. It mirrors
// changes made in the Redis ledger; a positive delta marks the variant in
// stock, like Restore does.
func (s *Store) AdjustVariantStock(ctx context.Context, ref models.VariantRef, delta int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_variants
		SET stock = stock + $1, in_stock = ($1 > 0 OR stock + $1 > 0), updated_at = NOW()
		WHERE product_id = $2 AND id = $3`,
		delta, ref.ProductID, ref.VariantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	return nil
}

// NextSequence increments the named counter in a single statement, creating
// it at 1 on first use.
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.GetContext(ctx, &value, `
		INSERT INTO counters (id, sequence_value) VALUES ($1, 1)
		ON CONFLICT (id) DO UPDATE SET sequence_value = counters.sequence_value + 1
		RETURNING sequence_value`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return value, nil
}
