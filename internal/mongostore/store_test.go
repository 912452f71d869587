package mongostore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDecimalCodecRoundTrip(t *testing.T) {
	override := decimal.RequireFromString("1450.10")
	in := models.ColorVariant{ID: "v1", Name: "Noir", Price: &override, Stock: 3, InStock: true}

	raw, err := bson.MarshalWithRegistry(NewRegistry(), in)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "1450.1", doc["price"])

	var out models.ColorVariant
	require.NoError(t, bson.UnmarshalWithRegistry(NewRegistry(), raw, &out))
	require.NotNil(t, out.Price)
	assert.True(t, out.Price.Equal(override))
}

func TestDecimalCodecReadsNumbers(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"basePrice": 1200.5})
	require.NoError(t, err)

	var product models.Product
	require.NoError(t, bson.UnmarshalWithRegistry(NewRegistry(), raw, &product))
	assert.True(t, product.BasePrice.Equal(decimal.RequireFromString("1200.5")))
}

// Integration tests below need a MongoDB 4.2+ server.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("Integration test - requires MONGO_TEST_URI")
	}

	ctx := context.Background()
	s, err := NewStore(ctx, uri, fmt.Sprintf("orders_test_%s", uuid.NewString()[:8]))
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndexes(ctx))
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func seedProduct(t *testing.T, s *Store, stock int) models.VariantRef {
	t.Helper()
	product := &models.Product{
		ID:        "bag-1",
		Name:      "Leather tote",
		BasePrice: decimal.RequireFromString("1200"),
		Colors: []models.ColorVariant{
			{ID: "v-noir", Position: 0, Name: "Noir", Code: "#000000", Stock: stock, InStock: stock > 0},
			{ID: "v-rouge", Position: 1, Name: "Rouge", Code: "#FF0000", Stock: 1, InStock: true},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.SaveProduct(context.Background(), product))
	return models.VariantRef{ProductID: "bag-1", VariantID: "v-noir"}
}

func TestDeductAndRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := seedProduct(t, s, 2)

	previous, err := s.Deduct(ctx, ref, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, previous)

	product, err := s.GetProduct(ctx, "bag-1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Colors[0].Stock)
	assert.False(t, product.Colors[0].InStock)
	assert.Equal(t, 1, product.Colors[1].Stock, "other variants untouched")

	_, err = s.Deduct(ctx, ref, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = s.Deduct(ctx, models.VariantRef{ProductID: "bag-1", VariantID: "v-vert"}, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	remaining, err := s.Restore(ctx, ref, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	available, err := s.Available(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestAdjustVariantStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ref := seedProduct(t, s, 3)

	// a deduction and its rollback converge whatever order they land in
	require.NoError(t, s.AdjustVariantStock(ctx, ref, 3))
	require.NoError(t, s.AdjustVariantStock(ctx, ref, -3))
	require.NoError(t, s.AdjustVariantStock(ctx, ref, -3))

	product, err := s.GetProduct(ctx, "bag-1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Colors[0].Stock)
	assert.False(t, product.Colors[0].InStock)
	assert.Equal(t, 1, product.Colors[1].Stock)

	err = s.AdjustVariantStock(ctx, models.VariantRef{ProductID: "bag-1", VariantID: "v-vert"}, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextSequenceConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int64]bool{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.NextSequence(ctx, "order_number")
			assert.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestOrderVersionGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	order := &models.Order{
		ID:          uuid.NewString(),
		OrderNumber: "000001",
		Status:      models.OrderStatusPending,
		TotalPrice:  decimal.RequireFromString("1225"),
		StatusHistory: models.StatusHistory{
			{Status: models.OrderStatusPending, Timestamp: now},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateOrder(ctx, order))

	dup := *order
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateOrder(ctx, &dup), ErrDuplicate)

	stale := *order
	order.Status = models.OrderStatusProcessing
	require.NoError(t, s.UpdateOrderState(ctx, order))
	assert.Equal(t, int64(2), order.Version)

	stale.Status = models.OrderStatusCancelled
	assert.ErrorIs(t, s.UpdateOrderState(ctx, &stale), ErrConflict)

	require.NoError(t, s.AppendAdminNote(ctx, order.ID, models.AdminNote{Note: "gift wrap", Author: "admin", CreatedAt: now}))

	loaded, err := s.GetOrderByNumber(ctx, "000001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, loaded.Status)
	assert.Len(t, loaded.AdminNotes, 1)
	assert.True(t, loaded.TotalPrice.Equal(decimal.RequireFromString("1225")))
}
