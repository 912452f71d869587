package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"actor"})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of persisted order status transitions",
	}, []string{"status"})

	StockDeductionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_deductions_total",
		Help: "Total number of stock deduction attempts by outcome",
	}, []string{"outcome"})

	StockRestoresFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_restores_failed_total",
		Help: "Total number of stock restores that could not be applied",
	})

	StockMirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_mirror_failures_total",
		Help: "Total number of stock changes that could not be copied to the database",
	})

	ReservationRollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_rollbacks_total",
		Help: "Total number of reservation rollbacks",
	}, []string{"trigger"})

	ReservationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_latency_seconds",
		Help:    "Latency of multi-item stock reservations",
		Buckets: prometheus.DefBuckets,
	})

	RecoveredIntentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_intents_recovered_total",
		Help: "Total number of stale reservation intents rolled back by recovery",
	})

	PaymentCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Total number of payment gateway callbacks by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
