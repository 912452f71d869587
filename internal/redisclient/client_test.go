package redisclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront-orders/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewClientWithRedis(rdb), mr
}

var ref = models.VariantRef{ProductID: "bag-1", VariantID: "v-noir"}

func TestDeduct(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, ref, 10, true))

	previous, err := c.Deduct(ctx, ref, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, previous)
	assert.Equal(t, "9", mr.HGet("stock:bag-1:v-noir", "stock"))
	assert.Equal(t, "1", mr.HGet("stock:bag-1:v-noir", "in_stock"))
}

func TestDeduct_ToZeroClearsInStock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, ref, 2, true))

	previous, err := c.Deduct(ctx, ref, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, previous)

	stock, inStock, err := c.GetStock(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
	assert.False(t, inStock)
}

func TestDeduct_Insufficient(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, ref, 1, true))

	_, err := c.Deduct(ctx, ref, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	stock, err := c.Available(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}

func TestDeduct_UnknownVariant(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Deduct(context.Background(), ref, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Restore(context.Background(), ref, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeduct_ConcurrentNeverOversells(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, ref, 5, true))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Deduct(ctx, ref, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	stock, inStock, err := c.GetStock(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
	assert.False(t, inStock)
}

func TestRestore_ForcesInStock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, ref, 0, false))

	remaining, err := c.Restore(ctx, ref, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	_, inStock, err := c.GetStock(ctx, ref)
	require.NoError(t, err)
	assert.True(t, inStock)
}

func TestSyncInventory(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	err := c.SyncInventory(ctx, []models.ColorVariant{
		{ID: "v-noir", ProductID: "bag-1", Stock: 4, InStock: true},
		{ID: "v-rouge", ProductID: "bag-1", Stock: 0, InStock: false},
	})
	require.NoError(t, err)

	stock, err := c.Available(ctx, models.VariantRef{ProductID: "bag-1", VariantID: "v-rouge"})
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
	stock, err = c.Available(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 4, stock)
}

func TestSyncInventory_KeepsExistingStock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SyncInventory(ctx, []models.ColorVariant{
		{ID: "v-noir", ProductID: "bag-1", Stock: 4, InStock: true},
	}))
	_, err := c.Deduct(ctx, ref, 3)
	require.NoError(t, err)

	// a restart seeds again from a database copy that may lag behind
	require.NoError(t, c.SyncInventory(ctx, []models.ColorVariant{
		{ID: "v-noir", ProductID: "bag-1", Stock: 4, InStock: true},
		{ID: "v-vert", ProductID: "bag-1", Stock: 2, InStock: true},
	}))

	stock, err := c.Available(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
	stock, err = c.Available(ctx, models.VariantRef{ProductID: "bag-1", VariantID: "v-vert"})
	require.NoError(t, err)
	assert.Equal(t, 2, stock)
}

func TestNextSequence(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	first, err := c.NextSequence(ctx, "order_number")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	require.NoError(t, c.SeedSequence(ctx, "order_number", 41))
	next, err := c.NextSequence(ctx, "order_number")
	require.NoError(t, err)
	assert.Equal(t, int64(42), next)

	// seeding never lowers the counter
	require.NoError(t, c.SeedSequence(ctx, "order_number", 10))
	next, err = c.NextSequence(ctx, "order_number")
	require.NoError(t, err)
	assert.Equal(t, int64(43), next)
}

func TestNextSequence_ConcurrentUnique(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	const workers = 50
	values := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.NextSequence(ctx, "order_number")
			if err == nil {
				values <- v
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool)
	for v := range values {
		assert.False(t, seen[v], "duplicate sequence value %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers)
}

func TestLockAndIdempotency(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "checkout:key-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "checkout:key-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "checkout:key-1"))
	ok, err = c.AcquireLock(ctx, "checkout:key-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := c.GetIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, c.SetIdempotencyKey(ctx, "key-1", "order-1", time.Hour))
	value, err = c.GetIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", value)

	mr.FastForward(2 * time.Hour)
	value, err = c.GetIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Empty(t, value)
}
