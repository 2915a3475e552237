// Package gateway talks to the payment processor: it opens hosted checkout
// sessions for orders, looks sessions up again and verifies signed webhook
// deliveries.
package gateway

import (
	"context"

	"storefront/internal/models"
)

// MetadataOrderID is the session metadata key that carries our order id.
const MetadataOrderID = "order_id"

// Session payment states as reported by the processor.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Session lifecycle states as reported by the processor.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"
)

// Webhook event types the reconciliation service acts on.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired        = "checkout.session.expired"
)

// Session is the processor's view of a checkout session.
type Session struct {
	ID              string
	URL             string
	OrderID         string
	PaymentIntentID string
	AmountTotal     int64 // minor units
	Currency        string
	Status          string
	PaymentStatus   string
}

// Paid reports whether the processor considers the session settled.
func (s *Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid || s.PaymentStatus == PaymentStatusNoPaymentRequired
}

// Event is a verified webhook delivery. Session is nil for events that do
// not carry a checkout session.
type Event struct {
	ID      string
	Type    string
	Session *Session
}

// Gateway is the checkout session boundary consumed by the services.
type Gateway interface {
	// CreateSession opens a hosted checkout for the order's snapshotted line
	// items. It never touches the order itself.
	CreateSession(ctx context.Context, order *models.Order) (*Session, error)
	// RetrieveSession fetches the authoritative state of a session.
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
	// ParseEvent verifies the signature header against the raw payload
	// before decoding anything.
	ParseEvent(payload []byte, signature string) (*Event, error)
}
