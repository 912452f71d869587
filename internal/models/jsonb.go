package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB column types for the relational backend.

// OrderItems is the line item list of an order.
type OrderItems []OrderItem

// StatusHistory is the append-only audit trail of an order.
type StatusHistory []StatusEntry

// AdminNotes is the list of staff annotations of an order.
type AdminNotes []AdminNote

// Deductions is the list of deductions recorded on a reservation intent.
type Deductions []Deduction

func (v OrderItems) Value() (driver.Value, error) {
	return marshalJSONB(v, "[]")
}

func (v *OrderItems) Scan(src interface{}) error {
	return scanJSONB(src, v)
}

func (v StatusHistory) Value() (driver.Value, error) {
	return marshalJSONB(v, "[]")
}

func (v *StatusHistory) Scan(src interface{}) error {
	return scanJSONB(src, v)
}

func (v AdminNotes) Value() (driver.Value, error) {
	return marshalJSONB(v, "[]")
}

func (v *AdminNotes) Scan(src interface{}) error {
	return scanJSONB(src, v)
}

func (v Deductions) Value() (driver.Value, error) {
	return marshalJSONB(v, "[]")
}

func (v *Deductions) Scan(src interface{}) error {
	return scanJSONB(src, v)
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return marshalJSONB(a, "")
}

func (a *ShippingAddress) Scan(src interface{}) error {
	return scanJSONB(src, a)
}

func (p PaymentResult) Value() (driver.Value, error) {
	return marshalJSONB(p, "")
}

func (p *PaymentResult) Scan(src interface{}) error {
	return scanJSONB(src, p)
}

func marshalJSONB(v interface{}, empty string) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if empty != "" && string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

func scanJSONB(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
