package service

import (
	"context"
	"time"

	"storefront-orders/internal/models"
)

// Catalog reads products owned by the catalog.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	ListVariants(ctx context.Context) ([]models.ColorVariant, error)
}

// LedgerBackend holds per-variant stock. Deduct must be a single conditional
// storage command that never drives stock below zero.
type LedgerBackend interface {
	Available(ctx context.Context, ref models.VariantRef) (int, error)
	Deduct(ctx context.Context, ref models.VariantRef, quantity int) (previous int, err error)
	Restore(ctx context.Context, ref models.VariantRef, quantity int) (remaining int, err error)
}

// StockMirror receives the stock changes of another ledger as deltas, so
// changes applied in any order converge on the same value.
type StockMirror interface {
	AdjustVariantStock(ctx context.Context, ref models.VariantRef, delta int) error
}

// InventoryCache is a ledger that must be seeded from the catalog.
type InventoryCache interface {
	SyncInventory(ctx context.Context, variants []models.ColorVariant) error
}

// SequenceBackend increments a named counter atomically.
type SequenceBackend interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	UpdateOrderState(ctx context.Context, order *models.Order) error
	AppendAdminNote(ctx context.Context, orderID string, note models.AdminNote) error
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
}

type IntentRepository interface {
	CreateIntent(ctx context.Context, intent *models.ReservationIntent) error
	AppendDeduction(ctx context.Context, intentID string, d models.Deduction) error
	MarkIntent(ctx context.Context, intentID, status, orderID string) error
	ListStaleIntents(ctx context.Context, before time.Time, limit int) ([]models.ReservationIntent, error)
}

type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// IdempotencyCache remembers which order a checkout key produced.
type IdempotencyCache interface {
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
