package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront-orders/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/deduct_stock.lua
var deductStockScript string

//go:embed scripts/restore_stock.lua
var restoreStockScript string

var (
	ErrNotFound          = models.ErrNotFound
	ErrInsufficientStock = models.ErrInsufficientStock
)

type Client struct {
	rdb           *redis.Client
	deductScript  *redis.Script
	restoreScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientWithRedis(rdb), nil
}

// NewClientWithRedis wraps an existing connection.
func NewClientWithRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		deductScript:  redis.NewScript(deductStockScript),
		restoreScript: redis.NewScript(restoreStockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(ref models.VariantRef) string {
	return fmt.Sprintf("stock:%s:%s", ref.ProductID, ref.VariantID)
}

// Deduct atomically removes quantity from a variant and returns the stock it had before.
func (c *Client) Deduct(ctx context.Context, ref models.VariantRef, quantity int) (int, error) {
	result, err := c.deductScript.Run(ctx, c.rdb, []string{stockKey(ref)}, quantity).Int()
	if err != nil {
		return 0, fmt.Errorf("deduct stock script failed: %w", err)
	}

	switch result {
	case -1:
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	case -2:
		return 0, fmt.Errorf("%w: variant %s/%s", ErrInsufficientStock, ref.ProductID, ref.VariantID)
	}
	return result, nil
}

// Restore atomically adds quantity back, forces in_stock on and returns the resulting stock.
func (c *Client) Restore(ctx context.Context, ref models.VariantRef, quantity int) (int, error) {
	result, err := c.restoreScript.Run(ctx, c.rdb, []string{stockKey(ref)}, quantity).Int()
	if err != nil {
		return 0, fmt.Errorf("restore stock script failed: %w", err)
	}
	if result == -1 {
		return 0, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}
	return result, nil
}

// Available returns the current stock of a variant.
func (c *Client) Available(ctx context.Context, ref models.VariantRef) (int, error) {
	stock, _, err := c.GetStock(ctx, ref)
	return stock, err
}

// GetStock retrieves the stock counters of a variant
func (c *Client) GetStock(ctx context.Context, ref models.VariantRef) (stock int, inStock bool, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(ref)).Result()
	if err != nil {
		return 0, false, err
	}

	if len(result) == 0 {
		return 0, false, fmt.Errorf("%w: variant %s/%s", ErrNotFound, ref.ProductID, ref.VariantID)
	}

	stock, err = strconv.Atoi(result["stock"])
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock value for %s: %w", stockKey(ref), err)
	}
	return stock, result["in_stock"] == "1", nil
}

// InitInventory initializes the stock of a variant in Redis
func (c *Client) InitInventory(ctx context.Context, ref models.VariantRef, stock int, inStock bool) error {
	flag := 0
	if inStock {
		flag = 1
	}
	return c.rdb.HSet(ctx, stockKey(ref), "stock", stock, "in_stock", flag).Err()
}

// SyncInventory loads every variant into Redis in one pipeline. Variants
// Redis already holds keep their values: Redis owns the stock once seeded.
func (c *Client) SyncInventory(ctx context.Context, variants []models.ColorVariant) error {
	pipe := c.rdb.Pipeline()
	for _, v := range variants {
		flag := 0
		if v.InStock {
			flag = 1
		}
		key := stockKey(models.VariantRef{ProductID: v.ProductID, VariantID: v.ID})
		pipe.HSetNX(ctx, key, "stock", v.Stock)
		pipe.HSetNX(ctx, key, "in_stock", flag)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// NextSequence increments the named counter with a single INCR.
func (c *Client) NextSequence(ctx context.Context, name string) (int64, error) {
	value, err := c.rdb.Incr(ctx, fmt.Sprintf("sequence:%s", name)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence %s: %w", name, err)
	}
	return value, nil
}

// SeedSequence raises the counter to at least value, so switching from the
// database counter never hands out a number twice.
func (c *Client) SeedSequence(ctx context.Context, name string, value int64) error {
	key := fmt.Sprintf("sequence:%s", name)
	current, err := c.rdb.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if current >= value {
		return nil
	}
	return c.rdb.Set(ctx, key, value, 0).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the value stored for key, or "" when absent.
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	value, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
