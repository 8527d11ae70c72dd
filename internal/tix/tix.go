package tix

import "context"

// PaymentStatus is the platform's canonical order status vocabulary. Gateway
// modules translate provider-native statuses into these values before
// handing them back to the platform.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusCancelled PaymentStatus = "cancelled"
	StatusRefunded  PaymentStatus = "refunded"
	StatusFailed    PaymentStatus = "failed"
)

// Valid reports whether the status is one of the canonical values.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// LineItem is a single purchased ticket line on an order.
type LineItem struct {
	Name     string
	Quantity int
	Price    float64
}

// Order is the platform-owned order a gateway charges for. The payment
// token is opaque and issued by the platform; gateways only read orders.
type Order struct {
	Token string
	Total float64
	Items []LineItem
}

// Attendee is a ticket holder tied to an order by payment token.
type Attendee struct {
	ID           string
	PaymentToken string
	Email        string
	Status       PaymentStatus
}

// OrderStore resolves a payment token to order contents.
type OrderStore interface {
	GetOrder(ctx context.Context, token string) (Order, error)
}

// AttendeeStore looks up attendee records by payment token.
type AttendeeStore interface {
	FindByPaymentToken(ctx context.Context, token string) ([]Attendee, error)
}

// ResultApplier applies a canonical status to the order identified by the
// payment token. The platform owns all downstream side effects.
type ResultApplier interface {
	PaymentResult(ctx context.Context, token string, status PaymentStatus) error
}
