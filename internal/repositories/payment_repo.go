package repositories

import (
	"context"
	"time"

	"storefront/internal/models"
)

// PaymentRepository defines the interface for payment record access. There is
// at most one record per order.
type PaymentRepository interface {
	// FindByOrderID returns a NotFound error when the order has no record yet.
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	// Upsert inserts the record if the order has none, otherwise writes it
	// over the existing one only when record.Status may advance from the
	// stored status. The stored record is returned along with whether the
	// write happened.
	Upsert(ctx context.Context, record *models.Payment) (*models.Payment, bool, error)
}

func stampOutcome(record *models.Payment, now time.Time) {
	switch record.Status {
	case models.PaymentRecordSucceeded:
		record.SucceededAt = &now
	case models.PaymentRecordFailed:
		record.FailedAt = &now
	}
}

func paymentRecordStatusStrings(statuses []models.PaymentRecordStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
