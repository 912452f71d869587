package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-orders/internal/models"
	"storefront-orders/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentService applies payment gateway callbacks to orders. Callbacks are
// de-duplicated by event id.
type PaymentService struct {
	orders       OrderRepository
	events       EventStore
	orderService *OrderService
	logger       *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(orders OrderRepository, events EventStore, orderService *OrderService) *PaymentService {
	return &PaymentService{
		orders:       orders,
		events:       events,
		orderService: orderService,
		logger:       util.GetLogger(),
	}
}

// HandlePaymentSuccess marks the order paid and moves a pending order to processing.
func (ps *PaymentService) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentSuccess", attribute.String("order_id", event.OrderID))
	defer span.End()

	if event.TxID == "" {
		return validationError("payment transaction id is required")
	}
	if done, err := ps.alreadyProcessed(ctx, event.BaseEvent); err != nil || done {
		return err
	}

	ps.logger.Info("Handling payment success",
		zap.String("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber),
		zap.String("tx_id", event.TxID))

	var (
		order    *models.Order
		previous models.OrderStatus
		moved    bool
	)
	for attempt := 1; ; attempt++ {
		var err error
		order, err = ps.loadOrder(ctx, event.OrderID, event.OrderNumber)
		if err != nil {
			util.PaymentCallbacksTotal.WithLabelValues("unknown_order").Inc()
			return err
		}

		if order.IsCancelled {
			ps.logger.Warn("Payment received for cancelled order",
				zap.String("order_number", order.OrderNumber),
				zap.String("tx_id", event.TxID))
			util.PaymentCallbacksTotal.WithLabelValues("cancelled_order").Inc()
			ps.markProcessed(ctx, event.BaseEvent)
			return nil
		}

		previous = order.Status
		now := ps.orderService.now()
		order.IsPaid = true
		if order.PaidAt == nil {
			order.PaidAt = timePtr(now)
		}
		order.PaymentResult = &models.PaymentResult{
			TransactionID: event.TxID,
			Provider:      event.Provider,
			Status:        "succeeded",
			UpdatedAt:     now,
		}
		order.UpdatedAt = now

		moved = false
		if order.Status == models.OrderStatusPending {
			if moved, err = applyStatusTransition(order, models.OrderStatusProcessing,
				PaymentGatewayActor.label(), "payment confirmed", now, true); err != nil {
				return err
			}
		}

		err = ps.orders.UpdateOrderState(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt >= updateRetryLimit {
			err = orderStoreError(err, "record payment")
			util.RecordError(span, err)
			return err
		}
		ps.logger.Debug("Order changed while recording payment, retrying",
			zap.String("order_id", order.ID), zap.Int("attempt", attempt))
	}

	util.PaymentCallbacksTotal.WithLabelValues("success").Inc()
	if moved {
		util.OrderStatusTransitionsTotal.WithLabelValues(string(order.Status)).Inc()
		ps.orderService.publishStatusChanged(ctx, order, previous, PaymentGatewayActor.label(), "payment confirmed")
	}

	ps.logger.Info("Order paid", zap.String("order_number", order.OrderNumber))
	ps.markProcessed(ctx, event.BaseEvent)
	return nil
}

// HandlePaymentFailed cancels an unpaid order and restores its stock.
func (ps *PaymentService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentFailed", attribute.String("order_id", event.OrderID))
	defer span.End()

	if done, err := ps.alreadyProcessed(ctx, event.BaseEvent); err != nil || done {
		return err
	}

	ps.logger.Warn("Handling payment failure - starting compensation",
		zap.String("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	order, err := ps.loadOrder(ctx, event.OrderID, event.OrderNumber)
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues("unknown_order").Inc()
		return err
	}

	if order.IsPaid || order.IsCancelled || order.Status.IsTerminal() {
		ps.logger.Info("Ignoring payment failure for settled order",
			zap.String("order_number", order.OrderNumber),
			zap.String("status", string(order.Status)),
			zap.Bool("paid", order.IsPaid))
		util.PaymentCallbacksTotal.WithLabelValues("ignored").Inc()
		ps.markProcessed(ctx, event.BaseEvent)
		return nil
	}

	reason := strings.TrimSpace(event.Reason)
	if reason == "" {
		reason = "unspecified"
	}
	cancelled, err := ps.orderService.CancelOrder(ctx, PaymentGatewayActor, order.ID, "payment declined: "+reason)
	if err != nil {
		util.RecordError(span, err)
		// a returned order means the cancellation was saved; do not replay it
		if cancelled != nil {
			ps.markProcessed(ctx, event.BaseEvent)
		}
		return err
	}

	util.PaymentCallbacksTotal.WithLabelValues("failed").Inc()
	ps.logger.Info("Order cancelled and compensated", zap.String("order_number", order.OrderNumber))
	ps.markProcessed(ctx, event.BaseEvent)
	return nil
}

func (ps *PaymentService) loadOrder(ctx context.Context, orderID, orderNumber string) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	switch {
	case orderID != "":
		order, err = ps.orders.GetOrderByID(ctx, orderID)
	case orderNumber != "":
		order, err = ps.orders.GetOrderByNumber(ctx, orderNumber)
	default:
		return nil, validationError("payment event carries no order reference")
	}
	if err != nil {
		return nil, orderStoreError(err, "load order")
	}
	return order, nil
}

func (ps *PaymentService) alreadyProcessed(ctx context.Context, event models.BaseEvent) (bool, error) {
	if event.EventID == "" {
		return false, nil
	}
	processed, err := ps.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return false, fmt.Errorf("%w: check event processed: %v", ErrPersistence, err)
	}
	if processed {
		ps.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.PaymentCallbacksTotal.WithLabelValues("duplicate").Inc()
	}
	return processed, nil
}

// markProcessed only logs a failure: the order change is already saved and
// a replay is rejected by the order state.
func (ps *PaymentService) markProcessed(ctx context.Context, event models.BaseEvent) {
	if event.EventID == "" {
		return
	}
	if err := ps.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		ps.logger.Error("Failed to mark event processed", zap.String("event_id", event.EventID), zap.Error(err))
	}
}
