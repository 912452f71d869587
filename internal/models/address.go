package models

// ShippingAddress is embedded in the order and validated at write time.
type ShippingAddress struct {
	FullName   string `json:"fullName" bson:"fullName" validate:"required,max=120"`
	Phone      string `json:"phone" bson:"phone" validate:"required,e164"`
	Address    string `json:"address" bson:"address" validate:"required,max=250"`
	City       string `json:"city" bson:"city" validate:"required,max=100"`
	PostalCode string `json:"postalCode" bson:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" bson:"country" validate:"required,max=100"`
}
