package repositories

import (
	"context"
	"sync"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"

	"github.com/google/uuid"
)

// MockPaymentRepository is an in-memory implementation of PaymentRepository,
// keyed by order ID.
type MockPaymentRepository struct {
	payments map[string]models.Payment
	mu       sync.RWMutex
}

// NewMockPaymentRepository creates a new instance of MockPaymentRepository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[string]models.Payment),
	}
}

// FindByOrderID returns the payment record of an order.
func (r *MockPaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[orderID]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "payment for order %s not found", orderID)
	}
	return &payment, nil
}

// Upsert compares and sets the record under the write lock.
func (r *MockPaymentRepository) Upsert(ctx context.Context, record *models.Payment) (*models.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, ok := r.payments[record.OrderID]
	if !ok {
		created := *record
		if created.ID == "" {
			created.ID = uuid.New().String()
		}
		stampOutcome(&created, now)
		created.CreatedAt = now
		created.UpdatedAt = now
		r.payments[created.OrderID] = created
		return &created, true, nil
	}

	if !record.Status.CanAdvanceFrom(existing.Status) {
		return &existing, false, nil
	}

	existing.Status = record.Status
	existing.AmountMinor = record.AmountMinor
	existing.Currency = record.Currency
	if record.SessionID != "" {
		existing.SessionID = record.SessionID
	}
	if record.PaymentIntentID != "" {
		existing.PaymentIntentID = record.PaymentIntentID
	}
	stampOutcome(&existing, now)
	existing.UpdatedAt = now
	r.payments[existing.OrderID] = existing
	return &existing, true, nil
}

func (r *MockPaymentRepository) snapshot() map[string]models.Payment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	copied := make(map[string]models.Payment, len(r.payments))
	for id, payment := range r.payments {
		copied[id] = payment
	}
	return copied
}

func (r *MockPaymentRepository) restore(payments map[string]models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = payments
}
