package service

// Roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// PaymentGatewayActor is recorded on transitions driven by payment callbacks.
var PaymentGatewayActor = Actor{UserID: "payment-gateway", Role: RoleSystem}

// Actor is the caller on whose behalf an operation runs. An empty UserID is a guest.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsGuest() bool {
	return a.UserID == ""
}

// IsStaff reports whether the actor may manage any order.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

func (a Actor) label() string {
	if a.IsGuest() {
		return "guest"
	}
	return a.UserID
}
