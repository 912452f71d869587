package models

// OrderStatus is the explicit lifecycle state of an order.
type OrderStatus string

// Order statuses
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPacked     OrderStatus = "packed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusPacked:     2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(raw)
	if status == OrderStatusCancelled {
		return status, true
	}
	_, ok := statusRank[status]
	return status, ok
}

// IsTerminal reports whether no further transition is expected.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Rank orders the forward path pending < processing < packed < shipped < delivered.
// Cancelled has no rank and reports -1.
func (s OrderStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// DerivedStatus resolves the status from the milestone flags with priority
// cancelled > delivered > shipped > packed > (processing|paid) > pending.
func (o *Order) DerivedStatus() OrderStatus {
	switch {
	case o.IsCancelled:
		return OrderStatusCancelled
	case o.IsDelivered:
		return OrderStatusDelivered
	case o.IsShipped:
		return OrderStatusShipped
	case o.IsPacked:
		return OrderStatusPacked
	case o.IsProcessing || o.IsPaid:
		return OrderStatusProcessing
	default:
		return OrderStatusPending
	}
}

// LastRecordedStatus returns the status of the newest history entry, or "" if none.
func (o *Order) LastRecordedStatus() OrderStatus {
	if len(o.StatusHistory) == 0 {
		return ""
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status
}
