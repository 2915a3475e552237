package repositories

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Stores groups the repositories a transaction hands to its callback.
type Stores struct {
	Orders   OrderRepository
	Payments PaymentRepository
}

// Transactor runs fn so that all of its writes commit together or not at all.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(stores Stores) error) error
}

// GORMTransactor runs fn inside a database transaction.
type GORMTransactor struct {
	db *gorm.DB
}

// NewGORMTransactor creates a new instance of GORMTransactor.
func NewGORMTransactor(db *gorm.DB) *GORMTransactor {
	return &GORMTransactor{db: db}
}

// RunInTx binds fresh repositories to the transaction handle.
func (t *GORMTransactor) RunInTx(ctx context.Context, fn func(stores Stores) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Stores{
			Orders:   NewGORMOrderRepository(tx),
			Payments: NewGORMPaymentRepository(tx),
		})
	})
}

// MockTransactor serialises transactions over the in-memory repositories and
// restores their previous contents when fn fails.
type MockTransactor struct {
	orders   *MockOrderRepository
	payments *MockPaymentRepository
	mu       sync.Mutex
}

// NewMockTransactor creates a new instance of MockTransactor.
func NewMockTransactor(orders *MockOrderRepository, payments *MockPaymentRepository) *MockTransactor {
	return &MockTransactor{orders: orders, payments: payments}
}

// RunInTx runs fn while holding the transactor lock.
func (t *MockTransactor) RunInTx(ctx context.Context, fn func(stores Stores) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	savedOrders := t.orders.snapshot()
	savedPayments := t.payments.snapshot()
	if err := fn(Stores{Orders: t.orders, Payments: t.payments}); err != nil {
		t.orders.restore(savedOrders)
		t.payments.restore(savedPayments)
		return err
	}
	return nil
}
