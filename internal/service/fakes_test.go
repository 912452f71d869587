package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-orders/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory backend for every storage port of the service.
type memStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
	counters map[string]int64
	orders   map[string]*models.Order
	intents  map[string]*models.ReservationIntent
	events   map[string]string

	failCreateOrder error
	failSequence    error
	failRestore     error
	failCommit      error
	deductCalls     []models.VariantRef
}

func newMemStore() *memStore {
	return &memStore{
		products: map[string]*models.Product{},
		counters: map[string]int64{},
		orders:   map[string]*models.Order{},
		intents:  map[string]*models.ReservationIntent{},
		events:   map[string]string{},
	}
}

func (m *memStore) addProduct(id, name, price string, colors ...models.ColorVariant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range colors {
		colors[i].ProductID = id
		colors[i].Position = i
		colors[i].InStock = colors[i].Stock > 0
	}
	m.products[id] = &models.Product{ID: id, Name: name, BasePrice: decimal.RequireFromString(price), Colors: colors}
}

func (m *memStore) variant(ref models.VariantRef) *models.ColorVariant {
	p, ok := m.products[ref.ProductID]
	if !ok {
		return nil
	}
	for i := range p.Colors {
		if p.Colors[i].ID == ref.VariantID {
			return &p.Colors[i]
		}
	}
	return nil
}

func (m *memStore) stockOf(productID, variantID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.variant(models.VariantRef{ProductID: productID, VariantID: variantID})
	return v.Stock, v.InStock
}

func (m *memStore) GetProduct(_ context.Context, productID string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, productID)
	}
	cp := *p
	cp.Colors = append([]models.ColorVariant(nil), p.Colors...)
	return &cp, nil
}

func (m *memStore) ListVariants(_ context.Context) ([]models.ColorVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ColorVariant
	for _, p := range m.products {
		out = append(out, p.Colors...)
	}
	return out, nil
}

func (m *memStore) Available(_ context.Context, ref models.VariantRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.variant(ref)
	if v == nil {
		return 0, models.ErrNotFound
	}
	return v.Stock, nil
}

func (m *memStore) Deduct(_ context.Context, ref models.VariantRef, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deductCalls = append(m.deductCalls, ref)
	v := m.variant(ref)
	if v == nil {
		return 0, models.ErrNotFound
	}
	if v.Stock < quantity {
		return 0, models.ErrInsufficientStock
	}
	previous := v.Stock
	v.Stock -= quantity
	v.InStock = v.Stock > 0
	return previous, nil
}

func (m *memStore) Restore(_ context.Context, ref models.VariantRef, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRestore != nil {
		return 0, m.failRestore
	}
	v := m.variant(ref)
	if v == nil {
		return 0, models.ErrNotFound
	}
	v.Stock += quantity
	v.InStock = true
	return v.Stock, nil
}

func (m *memStore) NextSequence(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSequence != nil {
		return 0, m.failSequence
	}
	m.counters[name]++
	return m.counters[name], nil
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.OrderItems = append(models.OrderItems(nil), o.OrderItems...)
	cp.StatusHistory = append(models.StatusHistory(nil), o.StatusHistory...)
	cp.AdminNotes = append(models.AdminNotes{}, o.AdminNotes...)
	return &cp
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateOrder != nil {
		return m.failCreateOrder
	}
	for _, o := range m.orders {
		if o.OrderNumber == order.OrderNumber || (order.IdempotencyKey != "" && o.IdempotencyKey == order.IdempotencyKey) {
			return models.ErrDuplicate
		}
	}
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *memStore) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateOrderState(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[order.ID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Version != order.Version {
		return models.ErrVersionConflict
	}
	order.Version++
	notes := stored.AdminNotes
	m.orders[order.ID] = cloneOrder(order)
	m.orders[order.ID].AdminNotes = notes
	return nil
}

func (m *memStore) AppendAdminNote(_ context.Context, orderID string, note models.AdminNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return models.ErrNotFound
	}
	o.AdminNotes = append(o.AdminNotes, note)
	return nil
}

func (m *memStore) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	return m.list(func(o *models.Order) bool { return o.UserID == userID }, 0, 0), nil
}

func (m *memStore) ListOrders(_ context.Context, filter models.OrderFilter) ([]models.Order, error) {
	return m.list(func(o *models.Order) bool {
		return filter.Status == "" || o.Status == filter.Status
	}, filter.Limit, filter.Offset), nil
}

func (m *memStore) list(keep func(*models.Order) bool, limit, offset int) []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber > out[j].OrderNumber })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (m *memStore) CreateIntent(_ context.Context, intent *models.ReservationIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *intent
	m.intents[intent.ID] = &cp
	return nil
}

func (m *memStore) AppendDeduction(_ context.Context, intentID string, d models.Deduction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok || intent.Status != models.IntentStatusPending {
		return models.ErrNotFound
	}
	intent.Deductions = append(intent.Deductions, d)
	return nil
}

func (m *memStore) MarkIntent(_ context.Context, intentID, status, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok || intent.Status != models.IntentStatusPending {
		return models.ErrNotFound
	}
	if status == models.IntentStatusCommitted && m.failCommit != nil {
		return m.failCommit
	}
	intent.Status = status
	intent.OrderID = orderID
	return nil
}

func (m *memStore) ListStaleIntents(_ context.Context, before time.Time, limit int) ([]models.ReservationIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReservationIntent
	for _, intent := range m.intents {
		if intent.Status == models.IntentStatusPending && intent.CreatedAt.Before(before) {
			out = append(out, *intent)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) intentStatuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, intent := range m.intents {
		out = append(out, intent.Status)
	}
	return out
}

func (m *memStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *memStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventID] = eventType
	return nil
}

// memRedis stands in for locks and the idempotency cache.
type memRedis struct {
	mu    sync.Mutex
	locks map[string]bool
	keys  map[string]string

	// onAcquire runs after a lock is taken.
	onAcquire func(key string)
}

func newMemRedis() *memRedis {
	return &memRedis{locks: map[string]bool{}, keys: map[string]string{}}
}

func (r *memRedis) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	if r.locks[key] {
		r.mu.Unlock()
		return false, nil
	}
	r.locks[key] = true
	hook := r.onAcquire
	r.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return true, nil
}

func (r *memRedis) ReleaseLock(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, key)
	return nil
}

func (r *memRedis) GetIdempotencyKey(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[key], nil
}

func (r *memRedis) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key] = fmt.Sprint(value)
	return nil
}

type mockPublisher struct {
	mock.Mock
}

func (p *mockPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return p.Called(ctx, event).Error(0)
}

func (p *mockPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return p.Called(ctx, event).Error(0)
}

func (p *mockPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return p.Called(ctx, event).Error(0)
}

func newQuietPublisher() *mockPublisher {
	p := &mockPublisher{}
	p.On("PublishOrderCreated", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishOrderStatusChanged", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishOrderCancelled", mock.Anything, mock.Anything).Return(nil).Maybe()
	return p
}

type harness struct {
	store     *memStore
	redis     *memRedis
	publisher *mockPublisher
	inventory *InventoryClient
	reserver  *StockReserver
	orders    *OrderService
	payments  *PaymentService
}

func newHarness(strict bool) *harness {
	st := newMemStore()
	rd := newMemRedis()
	pub := newQuietPublisher()

	inventory := NewInventoryClient(st, st)
	reserver := NewStockReserver(inventory, st)
	orders := NewOrderService(st, inventory, reserver, NewSequenceGenerator(st, 6), pub, rd, rd, OrderServiceConfig{
		StrictTransitions:  strict,
		AllowGuestCheckout: true,
		DefaultCountryCode: "33",
		Pricing: Pricing{
			ShippingFee:           decimal.RequireFromString("25"),
			FreeShippingThreshold: decimal.RequireFromString("500"),
		},
	})

	return &harness{
		store:     st,
		redis:     rd,
		publisher: pub,
		inventory: inventory,
		reserver:  reserver,
		orders:    orders,
		payments:  NewPaymentService(st, st, orders),
	}
}

var (
	customer = Actor{UserID: "user-1", Role: RoleCustomer}
	admin    = Actor{UserID: "admin-1", Role: RoleAdmin}
)

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		FullName:   "Ada Lovelace",
		Phone:      "+33612345678",
		Address:    "12 rue de la Paix",
		City:       "Paris",
		PostalCode: "75002",
		Country:    "France",
	}
}

func checkout(items ...OrderItemRequest) *CreateOrderRequest {
	return &CreateOrderRequest{
		OrderItems:      items,
		ShippingAddress: validAddress(),
		PaymentMethod:   models.PaymentMethodCard,
	}
}

var errBoom = errors.New("boom")
