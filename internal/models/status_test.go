package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedStatusPriority(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  OrderStatus
	}{
		{"fresh order", Order{}, OrderStatusPending},
		{"paid only", Order{IsPaid: true}, OrderStatusProcessing},
		{"processing", Order{IsPaid: true, IsProcessing: true}, OrderStatusProcessing},
		{"packed", Order{IsProcessing: true, IsPacked: true}, OrderStatusPacked},
		{"shipped", Order{IsPacked: true, IsShipped: true}, OrderStatusShipped},
		{"delivered", Order{IsShipped: true, IsDelivered: true}, OrderStatusDelivered},
		{"cancelled wins", Order{IsDelivered: true, IsCancelled: true}, OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.order.DerivedStatus())
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, raw := range []string{"pending", "processing", "packed", "shipped", "delivered", "cancelled"} {
		status, ok := ParseOrderStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, OrderStatus(raw), status)
	}

	_, ok := ParseOrderStatus("refunded")
	assert.False(t, ok)
}

func TestStatusRankAndTerminal(t *testing.T) {
	assert.Less(t, OrderStatusPending.Rank(), OrderStatusProcessing.Rank())
	assert.Less(t, OrderStatusPacked.Rank(), OrderStatusShipped.Rank())
	assert.Equal(t, -1, OrderStatusCancelled.Rank())

	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())
}

func TestJSONBColumnsRoundTripThroughDriver(t *testing.T) {
	items := OrderItems{{Product: "p1", VariantID: "v1", Name: "Silk scarf", Quantity: 2, Price: decimal.RequireFromString("120.50"), Color: "Noir"}}

	raw, err := items.Value()
	require.NoError(t, err)

	var scanned OrderItems
	require.NoError(t, scanned.Scan(raw))
	require.Len(t, scanned, 1)
	assert.True(t, scanned[0].Price.Equal(decimal.RequireFromString("120.50")))

	var empty StatusHistory
	value, err := empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), value)

	var result *PaymentResult
	require.NoError(t, json.Unmarshal([]byte(`null`), &result))
	assert.Nil(t, result)

	var noResult PaymentResult
	assert.NoError(t, noResult.Scan(nil))
	assert.Error(t, noResult.Scan(42))
}
