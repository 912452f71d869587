package service

import (
	"fmt"
	"reflect"
	"strings"

	"storefront-orders/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest     `json:"orderItems" validate:"required,min=1,max=50,dive"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod" validate:"required,oneof=card cash transfer"`
	TotalPrice      *decimal.Decimal       `json:"totalPrice,omitempty"`
	IdempotencyKey  string                 `json:"-"`
}

// OrderItemRequest is one requested line. Name and Price sent by the client
// are ignored in favour of the catalog snapshot.
type OrderItemRequest struct {
	Product   string           `json:"product" validate:"required"`
	VariantID string           `json:"variantId,omitempty"`
	Name      string           `json:"name,omitempty"`
	Quantity  int              `json:"quantity" validate:"min=1,max=100"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Size      string           `json:"size,omitempty" validate:"max=20"`
	Color     string           `json:"color" validate:"required_without=VariantID,max=50"`
}

// Selector returns the color selector of the line.
func (i OrderItemRequest) Selector() models.ColorSelector {
	return models.ColorSelector{VariantID: i.VariantID, Value: i.Color}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags and flattens failures into one validation error.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return validationError("%v", err)
	}

	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", field, describeTag(fe)))
	}
	return validationError("%s", strings.Join(msgs, "; "))
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "e164":
		return "international phone format"
	case "oneof":
		return "one of [" + fe.Param() + "]"
	case "required", "required_without":
		return "required"
	default:
		if fe.Param() != "" {
			return fe.Tag() + "=" + fe.Param()
		}
		return fe.Tag()
	}
}

// normalizeAddress trims every field and rewrites the phone number to E.164.
func normalizeAddress(addr models.ShippingAddress, countryCode string) models.ShippingAddress {
	addr.FullName = strings.TrimSpace(addr.FullName)
	addr.Address = strings.TrimSpace(addr.Address)
	addr.City = strings.TrimSpace(addr.City)
	addr.PostalCode = strings.TrimSpace(addr.PostalCode)
	addr.Country = strings.TrimSpace(addr.Country)
	addr.Phone = normalizePhone(addr.Phone, countryCode)
	return addr
}

// normalizePhone converts local and 00-prefixed numbers to +<country><number>.
// Input it cannot interpret is returned with separators stripped so that
// validation reports it.
func normalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
		default:
			b.WriteRune(r)
		}
	}
	phone := b.String()

	switch {
	case phone == "":
		return phone
	case strings.HasPrefix(phone, "+"):
		return phone
	case strings.HasPrefix(phone, "00"):
		return "+" + phone[2:]
	case strings.HasPrefix(phone, "0"):
		return "+" + countryCode + phone[1:]
	default:
		return "+" + countryCode + phone
	}
}

// Pricing computes order totals. Shipping is free from FreeShippingThreshold up.
type Pricing struct {
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// Totals returns itemsPrice, shippingPrice and totalPrice for the lines.
func (p Pricing) Totals(items models.OrderItems) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	itemsPrice = itemsPrice.Round(2)

	shipping := p.ShippingFee.Round(2)
	if itemsPrice.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	return itemsPrice, shipping, itemsPrice.Add(shipping)
}
