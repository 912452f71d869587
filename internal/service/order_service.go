package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	checkoutLockTTL  = 30 * time.Second
	idempotencyTTL   = 24 * time.Hour
	defaultListLimit = 50
	maxListLimit     = 200
	updateRetryLimit = 3
	orderCreatedNote = "Order created"
)

// OrderServiceConfig holds the business settings of the order service.
type OrderServiceConfig struct {
	StrictTransitions  bool
	AllowGuestCheckout bool
	DefaultCountryCode string
	Pricing            Pricing
}

// OrderService handles order business logic
type OrderService struct {
	orders    OrderRepository
	inventory *InventoryClient
	reserver  *StockReserver
	sequence  *SequenceGenerator
	publisher EventPublisher
	locker    Locker
	cache     IdempotencyCache
	cfg       OrderServiceConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderRepository,
	inventory *InventoryClient,
	reserver *StockReserver,
	sequence *SequenceGenerator,
	publisher EventPublisher,
	locker Locker,
	cache IdempotencyCache,
	cfg OrderServiceConfig,
) *OrderService {
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		reserver:  reserver,
		sequence:  sequence,
		publisher: publisher,
		locker:    locker,
		cache:     cache,
		cfg:       cfg,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder validates the checkout, reserves stock for every line, numbers
// the order and persists it with its initial pending history entry. Any
// failure after stock was deducted restores it before returning.
func (s *OrderService) CreateOrder(ctx context.Context, actor Actor, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.Int("lines", len(req.OrderItems)))
	defer span.End()

	if actor.IsGuest() && !s.cfg.AllowGuestCheckout {
		return nil, ErrUnauthorized
	}

	req.ShippingAddress = normalizeAddress(req.ShippingAddress, s.cfg.DefaultCountryCode)
	if err := validateStruct(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}

		lockKey := "checkout:" + req.IdempotencyKey
		acquired, err := s.locker.AcquireLock(ctx, lockKey, checkoutLockTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: acquire checkout lock: %v", ErrPersistence, err)
		}
		if !acquired {
			return nil, fmt.Errorf("%w: checkout %s already in progress", ErrConflict, req.IdempotencyKey)
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), lockKey); err != nil {
				s.logger.Warn("Failed to release checkout lock", zap.String("key", lockKey), zap.Error(err))
			}
		}()

		// the holder we waited on may have saved the order in the meantime
		existing, err = s.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected under lock",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}
	}

	items, lines, err := s.snapshotItems(ctx, req.OrderItems)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("catalog").Inc()
		util.RecordError(span, err)
		return nil, err
	}

	itemsPrice, shippingPrice, totalPrice := s.cfg.Pricing.Totals(items)
	if req.TotalPrice != nil && !req.TotalPrice.Round(2).Equal(totalPrice) {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, validationError("totalPrice %s does not match computed total %s", req.TotalPrice.StringFixed(2), totalPrice.StringFixed(2))
	}

	orderID := uuid.New().String()
	reservation, err := s.reserver.Reserve(ctx, orderID, lines)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("reservation").Inc()
		util.RecordError(span, err)
		return nil, err
	}

	orderNumber, err := s.sequence.NextOrderNumber(ctx)
	if err != nil {
		s.abortCheckout(ctx, reservation, err)
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:              orderID,
		OrderNumber:     orderNumber,
		UserID:          actor.UserID,
		IsGuestOrder:    actor.IsGuest(),
		OrderItems:      items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      itemsPrice,
		ShippingPrice:   shippingPrice,
		TotalPrice:      totalPrice,
		Status:          models.OrderStatusPending,
		StatusHistory: models.StatusHistory{{
			Status:    models.OrderStatusPending,
			Timestamp: now,
			UpdatedBy: actor.label(),
			Note:      orderCreatedNote,
		}},
		AdminNotes:     models.AdminNotes{},
		IdempotencyKey: req.IdempotencyKey,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		err = orderStoreError(err, "create order")
		s.abortCheckout(ctx, reservation, err)
		util.RecordError(span, err)
		return nil, err
	}

	s.reserver.Commit(ctx, reservation)
	if req.IdempotencyKey != "" {
		if err := s.cache.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID, idempotencyTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Bool("guest", order.IsGuestOrder),
		zap.String("total", order.TotalPrice.StringFixed(2)))

	s.publishCreated(ctx, order)
	return order, nil
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	if orderID, err := s.cache.GetIdempotencyKey(ctx, key); err != nil {
		s.logger.Warn("Idempotency cache unavailable", zap.Error(err))
	} else if orderID != "" {
		order, err := s.orders.GetOrderByID(ctx, orderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, orderStoreError(err, "load order")
		}
	}

	order, err := s.orders.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, orderStoreError(err, "check idempotency")
	}
	return order, nil
}

// snapshotItems resolves every line against the catalog before anything is
// deducted, pinning the variant id so the deduction hits the same variant.
func (s *OrderService) snapshotItems(ctx context.Context, reqItems []OrderItemRequest) (models.OrderItems, []ReservationLine, error) {
	items := make(models.OrderItems, 0, len(reqItems))
	lines := make([]ReservationLine, 0, len(reqItems))

	for _, item := range reqItems {
		snap, err := s.inventory.Resolve(ctx, item.Product, item.Selector())
		if err != nil {
			return nil, nil, err
		}

		items = append(items, models.OrderItem{
			Product:   snap.Ref.ProductID,
			VariantID: snap.Ref.VariantID,
			Name:      snap.ProductName,
			Quantity:  item.Quantity,
			Price:     snap.Price,
			Size:      item.Size,
			Color:     snap.ColorName,
		})
		lines = append(lines, ReservationLine{
			ProductID: snap.Ref.ProductID,
			Selector:  models.ColorSelector{VariantID: snap.Ref.VariantID},
			Quantity:  item.Quantity,
		})
	}
	return items, lines, nil
}

func (s *OrderService) abortCheckout(ctx context.Context, reservation *Reservation, cause error) {
	util.OrdersFailedTotal.WithLabelValues("persistence").Inc()
	s.logger.Error("Checkout failed after stock reservation, restoring stock",
		zap.String("intent_id", reservation.IntentID),
		zap.Error(cause))

	if err := s.reserver.Rollback(ctx, reservation); err != nil {
		s.logger.Error("Compensating rollback incomplete",
			zap.String("intent_id", reservation.IntentID),
			zap.Error(err))
	}
}

// GetOrder returns an order the actor is allowed to see.
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, orderStoreError(err, "get order")
	}
	if !actor.IsStaff() && !order.IsGuestOrder && order.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

// ListMyOrders returns the actor's orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, actor Actor) ([]models.Order, error) {
	if actor.IsGuest() {
		return nil, ErrUnauthorized
	}
	orders, err := s.orders.ListOrdersByUser(ctx, actor.UserID)
	if err != nil {
		return nil, orderStoreError(err, "list orders")
	}
	return orders, nil
}

// ListOrders pages through all orders for staff.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor, filter models.OrderFilter) ([]models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if filter.Status != "" {
		if _, ok := models.ParseOrderStatus(string(filter.Status)); !ok {
			return nil, validationError("unknown status %q", filter.Status)
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	orders, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, orderStoreError(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus applies an administrative status change. Cancelling goes
// through CancelOrder so that stock is restored.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, orderID string, status models.OrderStatus, note string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order_id", orderID),
		attribute.String("status", string(status)))
	defer span.End()

	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if status == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, actor, orderID, note)
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, orderStoreError(err, "get order")
	}
	previous := order.Status

	changed, err := applyStatusTransition(order, status, actor.label(), note, s.now(), s.cfg.StrictTransitions)
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	if err := s.orders.UpdateOrderState(ctx, order); err != nil {
		err = orderStoreError(err, "update order")
		util.RecordError(span, err)
		return nil, err
	}

	if order.Status == previous {
		s.logger.Info("Order milestone recorded without a status change",
			zap.String("order_number", order.OrderNumber),
			zap.String("status", string(order.Status)),
			zap.String("requested", string(status)),
			zap.String("by", actor.label()))
		return order, nil
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(string(order.Status)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
		zap.String("by", actor.label()))

	s.publishStatusChanged(ctx, order, previous, actor.label(), note)
	return order, nil
}

// CancelOrder cancels an order and puts its stock back. The cancelled state
// is saved first under the version guard so that two concurrent
// cancellations cannot both restore stock.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, orderID, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.String("order_id", orderID))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("a cancellation reason is required")
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, orderStoreError(err, "get order")
	}

	if !actor.IsStaff() {
		if actor.IsGuest() || order.UserID != actor.UserID {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		if !canCustomerCancel(order.Status) {
			return nil, fmt.Errorf("%w: order is already %s", ErrForbidden, order.Status)
		}
	}
	if order.IsCancelled {
		return nil, fmt.Errorf("%w: order is already cancelled", ErrInvalidTransition)
	}

	previous := order.Status
	if _, err := applyStatusTransition(order, models.OrderStatusCancelled, actor.label(), reason, s.now(), s.cfg.StrictTransitions); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateOrderState(ctx, order); err != nil {
		err = orderStoreError(err, "cancel order")
		util.RecordError(span, err)
		return nil, err
	}

	var restoreErrs []error
	for _, item := range order.OrderItems {
		sel := models.ColorSelector{VariantID: item.VariantID, Value: item.Color}
		if err := s.inventory.Restore(ctx, item.Product, sel, item.Quantity); err != nil {
			s.logger.Error("Failed to restore stock for cancelled order",
				zap.String("order_number", order.OrderNumber),
				zap.String("product_id", item.Product),
				zap.String("color", item.Color),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			restoreErrs = append(restoreErrs, err)
		}
	}

	actorKind := "customer"
	if actor.IsStaff() {
		actorKind = actor.Role
	}
	util.OrdersCancelledTotal.WithLabelValues(actorKind).Inc()
	util.OrderStatusTransitionsTotal.WithLabelValues(string(models.OrderStatusCancelled)).Inc()
	s.logger.Info("Order cancelled",
		zap.String("order_number", order.OrderNumber),
		zap.String("by", actor.label()),
		zap.String("reason", reason))

	s.publishStatusChanged(ctx, order, previous, actor.label(), reason)
	s.publishCancelled(ctx, order, actor.label())

	if len(restoreErrs) > 0 {
		err := fmt.Errorf("%w: order cancelled but stock restore failed: %v", ErrPersistence, errors.Join(restoreErrs...))
		util.RecordError(span, err)
		return order, err
	}
	return order, nil
}

// AddAdminNote appends a staff note and returns the updated order.
func (s *OrderService) AddAdminNote(ctx context.Context, actor Actor, orderID, note string) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, validationError("note must not be empty")
	}
	if len(note) > 2000 {
		return nil, validationError("note must be at most 2000 characters")
	}

	err := s.orders.AppendAdminNote(ctx, orderID, models.AdminNote{
		Note:      note,
		Author:    actor.label(),
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, orderStoreError(err, "append admin note")
	}
	return s.GetOrder(ctx, actor, orderID)
}

// CheckAvailability reports whether quantity of the selected color can be ordered.
func (s *OrderService) CheckAvailability(ctx context.Context, productID string, sel models.ColorSelector, quantity int) (bool, error) {
	return s.inventory.CheckAvailability(ctx, productID, sel, quantity)
}

func (s *OrderService) publishCreated(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.OrderItems))
	for _, item := range order.OrderItems {
		items = append(items, models.OrderItemData{
			ProductID: item.Product,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price.StringFixed(2),
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderCreated),
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		UserID:       order.UserID,
		IsGuestOrder: order.IsGuestOrder,
		TotalPrice:   order.TotalPrice.StringFixed(2),
		Items:        items,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *OrderService) publishStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus, by, note string) {
	event := &models.OrderStatusChangedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: previous,
		CurrentStatus:  order.Status,
		UpdatedBy:      by,
		Note:           note,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

func (s *OrderService) publishCancelled(ctx context.Context, order *models.Order, by string) {
	event := &models.OrderCancelledEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Reason:      order.CancelReason,
		CancelledBy: by,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
