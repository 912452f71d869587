package worker

import (
	"context"
	"errors"
	"time"

	"storefront-orders/internal/broker"
	"storefront-orders/internal/models"
	"storefront-orders/internal/service"
	"storefront-orders/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// PaymentHandler applies payment gateway events.
type PaymentHandler interface {
	HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error
	HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// Consumer delivers messages to a handler until its context ends.
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// PaymentWorker consumes payment gateway events from Kafka
type PaymentWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer Consumer, payments PaymentHandler) *PaymentWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSuccess(payments.HandlePaymentSuccess)
	eventHandler.OnPaymentFailed(payments.HandlePaymentFailed)

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the payment worker
func (pw *PaymentWorker) Start(ctx context.Context) error {
	pw.logger.Info("Starting payment worker")
	return pw.consumer.StartConsuming(ctx, pw.handle)
}

// handle drops events that can never succeed so they do not block the
// partition; anything else is returned for retry.
func (pw *PaymentWorker) handle(ctx context.Context, msg kafka.Message) error {
	err := pw.eventHandler.HandleMessage(ctx, msg)
	if err == nil || !isPermanent(err) {
		return err
	}

	pw.logger.Error("Dropping unprocessable payment event",
		zap.Int64("offset", msg.Offset),
		zap.ByteString("key", msg.Key),
		zap.Error(err))
	util.PaymentCallbacksTotal.WithLabelValues("dropped").Inc()
	return nil
}

func isPermanent(err error) bool {
	return errors.Is(err, broker.ErrMalformedEvent) ||
		errors.Is(err, service.ErrValidation) ||
		errors.Is(err, service.ErrNotFound) ||
		errors.Is(err, service.ErrInvalidTransition)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	pw.logger.Info("Stopping payment worker")
	return pw.consumer.Close()
}

// Recoverer rolls back abandoned stock reservations.
type Recoverer interface {
	RecoverStaleIntents(ctx context.Context) (int, error)
}

// RecoveryWorker periodically rolls back reservations whose checkout never finished.
type RecoveryWorker struct {
	recoverer Recoverer
	interval  time.Duration
	logger    *zap.Logger
}

func NewRecoveryWorker(recoverer Recoverer, interval time.Duration) *RecoveryWorker {
	return &RecoveryWorker{
		recoverer: recoverer,
		interval:  interval,
		logger:    util.GetLogger(),
	}
}

// Start runs one pass immediately, then one per interval until ctx is done.
func (rw *RecoveryWorker) Start(ctx context.Context) error {
	rw.logger.Info("Starting reservation recovery worker", zap.Duration("interval", rw.interval))

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		rw.runOnce(ctx)

		select {
		case <-ctx.Done():
			rw.logger.Info("Stopping reservation recovery worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (rw *RecoveryWorker) runOnce(ctx context.Context) {
	recovered, err := rw.recoverer.RecoverStaleIntents(ctx)
	if err != nil && ctx.Err() == nil {
		rw.logger.Error("Reservation recovery failed", zap.Error(err))
	}
	if recovered > 0 {
		rw.logger.Warn("Recovered abandoned reservations", zap.Int("count", recovered))
	}
}
