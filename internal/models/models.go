package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry consulted at checkout. The catalog itself is owned elsewhere.
type Product struct {
	ID        string          `db:"id" json:"id" bson:"_id"`
	Name      string          `db:"name" json:"name" bson:"name"`
	BasePrice decimal.Decimal `db:"base_price" json:"basePrice" bson:"basePrice"`
	Colors    []ColorVariant  `db:"-" json:"colors" bson:"colors"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt" bson:"createdAt"`
}

// ColorVariant is a per-color subdivision of a product with its own stock.
// InStock is true iff Stock > 0 after every deduction.
type ColorVariant struct {
	ID        string           `db:"id" json:"id" bson:"id"`
	ProductID string           `db:"product_id" json:"productId" bson:"-"`
	Position  int              `db:"position" json:"position" bson:"position"`
	Name      string           `db:"name" json:"name" bson:"name"`
	Code      string           `db:"code" json:"code" bson:"code"`
	Price     *decimal.Decimal `db:"price" json:"price,omitempty" bson:"price,omitempty"`
	InStock   bool             `db:"in_stock" json:"inStock" bson:"inStock"`
	Stock     int              `db:"stock" json:"stock" bson:"stock"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt" bson:"updatedAt"`
}

// ColorSelector picks a variant of a product. VariantID is the stable form;
// Value falls back to the first variant whose name or color code matches.
type ColorSelector struct {
	VariantID string `json:"variantId,omitempty"`
	Value     string `json:"value,omitempty"`
}

// String renders the selector for messages and logs.
func (s ColorSelector) String() string {
	if s.VariantID != "" {
		return s.VariantID
	}
	return s.Value
}

// VariantRef identifies a resolved color variant.
type VariantRef struct {
	ProductID string `json:"productId" bson:"productId"`
	VariantID string `json:"variantId" bson:"variantId"`
}

// VariantSnapshot is what checkout needs from the catalog for one line item.
type VariantSnapshot struct {
	Ref         VariantRef
	ProductName string
	ColorName   string
	ColorCode   string
	Price       decimal.Decimal
	Stock       int
	InStock     bool
}

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

// OrderItem is a line item. Name and Price are snapshots taken at order time.
type OrderItem struct {
	Product   string          `json:"product" bson:"product"`
	VariantID string          `json:"variantId" bson:"variantId"`
	Name      string          `json:"name" bson:"name"`
	Quantity  int             `json:"quantity" bson:"quantity"`
	Price     decimal.Decimal `json:"price" bson:"price"`
	Size      string          `json:"size,omitempty" bson:"size,omitempty"`
	Color     string          `json:"color" bson:"color"`
}

// Order is the persisted record of a checkout.
type Order struct {
	ID              string          `db:"id" json:"id" bson:"_id"`
	OrderNumber     string          `db:"order_number" json:"orderNumber" bson:"orderNumber"`
	UserID          string          `db:"user_id" json:"user,omitempty" bson:"user,omitempty"`
	IsGuestOrder    bool            `db:"is_guest_order" json:"isGuestOrder" bson:"isGuestOrder"`
	OrderItems      OrderItems      `db:"order_items" json:"orderItems" bson:"orderItems"`
	ShippingAddress ShippingAddress `db:"shipping_address" json:"shippingAddress" bson:"shippingAddress"`
	PaymentMethod   PaymentMethod   `db:"payment_method" json:"paymentMethod" bson:"paymentMethod"`
	PaymentResult   *PaymentResult  `db:"payment_result" json:"paymentResult,omitempty" bson:"paymentResult,omitempty"`

	ItemsPrice    decimal.Decimal `db:"items_price" json:"itemsPrice" bson:"itemsPrice"`
	ShippingPrice decimal.Decimal `db:"shipping_price" json:"shippingPrice" bson:"shippingPrice"`
	TotalPrice    decimal.Decimal `db:"total_price" json:"totalPrice" bson:"totalPrice"`

	Status OrderStatus `db:"status" json:"status" bson:"status"`

	IsPaid       bool       `db:"is_paid" json:"isPaid" bson:"isPaid"`
	PaidAt       *time.Time `db:"paid_at" json:"paidAt,omitempty" bson:"paidAt,omitempty"`
	IsProcessing bool       `db:"is_processing" json:"isProcessing" bson:"isProcessing"`
	ProcessingAt *time.Time `db:"processing_at" json:"processingAt,omitempty" bson:"processingAt,omitempty"`
	IsPacked     bool       `db:"is_packed" json:"isPacked" bson:"isPacked"`
	PackedAt     *time.Time `db:"packed_at" json:"packedAt,omitempty" bson:"packedAt,omitempty"`
	IsShipped    bool       `db:"is_shipped" json:"isShipped" bson:"isShipped"`
	ShippedAt    *time.Time `db:"shipped_at" json:"shippedAt,omitempty" bson:"shippedAt,omitempty"`
	IsDelivered  bool       `db:"is_delivered" json:"isDelivered" bson:"isDelivered"`
	DeliveredAt  *time.Time `db:"delivered_at" json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	IsCancelled  bool       `db:"is_cancelled" json:"isCancelled" bson:"isCancelled"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CancelReason string     `db:"cancel_reason" json:"cancelReason,omitempty" bson:"cancelReason,omitempty"`

	StatusHistory  StatusHistory `db:"status_history" json:"statusHistory" bson:"statusHistory"`
	AdminNotes     AdminNotes    `db:"admin_notes" json:"adminNotes" bson:"adminNotes"`
	IdempotencyKey string        `db:"idempotency_key" json:"-" bson:"idempotencyKey,omitempty"`
	Version        int64         `db:"version" json:"-" bson:"version"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt" bson:"updatedAt"`
}

// StatusEntry is one record of the append-only status history.
type StatusEntry struct {
	Status    OrderStatus `json:"status" bson:"status"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	UpdatedBy string      `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	Note      string      `json:"note,omitempty" bson:"note,omitempty"`
}

// AdminNote is a staff annotation, independent of the status history.
type AdminNote struct {
	Note      string    `json:"note" bson:"note"`
	Author    string    `json:"author" bson:"author"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// PaymentResult is what the payment gateway reported for the order.
type PaymentResult struct {
	TransactionID string    `json:"transactionId" bson:"transactionId"`
	Provider      string    `json:"provider,omitempty" bson:"provider,omitempty"`
	Status        string    `json:"status" bson:"status"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Intent statuses
const (
	IntentStatusPending    = "pending"
	IntentStatusCommitted  = "committed"
	IntentStatusRolledBack = "rolled_back"
)

// Deduction records one successful stock deduction made for an order in progress.
type Deduction struct {
	Ref           VariantRef `json:"ref" bson:"ref"`
	Selector      string     `json:"selector" bson:"selector"`
	Quantity      int        `json:"quantity" bson:"quantity"`
	PreviousStock int        `json:"previousStock" bson:"previousStock"`
}

// ReservationIntent is the durable trace of a reservation in flight, so that an
// interrupted process can roll it back on restart.
type ReservationIntent struct {
	ID         string     `db:"id" json:"id" bson:"_id"`
	Status     string     `db:"status" json:"status" bson:"status"`
	OrderID    string     `db:"order_id" json:"orderId,omitempty" bson:"orderId,omitempty"`
	Deductions Deductions `db:"deductions" json:"deductions" bson:"deductions"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt" bson:"updatedAt"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id" bson:"_id"`
	EventType   string    `db:"event_type" bson:"eventType"`
	ProcessedAt time.Time `db:"processed_at" bson:"processedAt"`
}

// OrderFilter narrows admin order listings. An empty Status lists every order.
type OrderFilter struct {
	Status OrderStatus
	Limit  int
	Offset int
}
