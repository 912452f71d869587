package service

import (
	"testing"

	"storefront-orders/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"06 12 34 56 78", "+33612345678"},
		{"06-12-34-56-78", "+33612345678"},
		{"+44 20 7946 0958", "+442079460958"},
		{"0044 20 7946 0958", "+442079460958"},
		{"612345678", "+33612345678"},
		{"(06) 12.34.56.78", "+33612345678"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePhone(tt.raw, "33"))
		})
	}
}

func TestPricingTotals(t *testing.T) {
	p := Pricing{
		ShippingFee:           decimal.RequireFromString("25"),
		FreeShippingThreshold: decimal.RequireFromString("500"),
	}

	items, shipping, total := p.Totals(models.OrderItems{
		{Quantity: 2, Price: decimal.RequireFromString("49.99")},
		{Quantity: 1, Price: decimal.RequireFromString("100.015")},
	})
	assert.Equal(t, "200.00", items.StringFixed(2))
	assert.Equal(t, "25.00", shipping.StringFixed(2))
	assert.Equal(t, "225.00", total.StringFixed(2))

	items, shipping, total = p.Totals(models.OrderItems{
		{Quantity: 1, Price: decimal.RequireFromString("500")},
	})
	assert.True(t, items.Equal(decimal.RequireFromString("500")))
	assert.True(t, shipping.IsZero())
	assert.True(t, total.Equal(items))
}

func TestValidateStruct_Messages(t *testing.T) {
	req := &CreateOrderRequest{
		OrderItems:    []OrderItemRequest{{Product: "bag", VariantID: "v-1", Quantity: 101}},
		PaymentMethod: models.PaymentMethodCash,
		ShippingAddress: models.ShippingAddress{
			FullName: "A", Phone: "+33612345678", Address: "x", City: "y", PostalCode: "1", Country: "FR",
		},
	}
	err := validateStruct(req)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "orderItems[0].quantity failed max=100")

	req.OrderItems[0].Quantity = 1
	assert.NoError(t, validateStruct(req))
}
