package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypePaymentSuccess     = "PAYMENT_SUCCESS"
	EventTypePaymentFailed      = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order has been persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      string          `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	UserID       string          `json:"user_id,omitempty"`
	IsGuestOrder bool            `json:"is_guest_order"`
	TotalPrice   string          `json:"total_price"`
	Items        []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after every persisted status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	PreviousStatus OrderStatus `json:"previous_status"`
	CurrentStatus  OrderStatus `json:"current_status"`
	UpdatedBy      string      `json:"updated_by,omitempty"`
	Note           string      `json:"note,omitempty"`
}

// OrderCancelledEvent published when an order is cancelled and its stock restored
type OrderCancelledEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// PaymentSuccessEvent published by the payment gateway
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number,omitempty"`
	Amount      string `json:"amount"`
	TxID        string `json:"tx_id"`
	Provider    string `json:"provider,omitempty"`
}

// PaymentFailedEvent published by the payment gateway
type PaymentFailedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number,omitempty"`
	TxID        string `json:"tx_id,omitempty"`
	Reason      string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}
