package repositories

import (
	"context"

	"storefront/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderFilter narrows List. An empty UserID lists every order.
type OrderFilter struct {
	UserID string
	Page   int
	Limit  int
}

// Normalize fills in paging defaults and clamps the page size.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	return f
}

func (f OrderFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

// OrderMutator edits an order inside Update. Returning an error aborts the
// update and leaves the stored order unchanged.
type OrderMutator func(order *models.Order) error

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	// Update reads, mutates and writes the order as one atomic step.
	Update(ctx context.Context, id string, mutate OrderMutator) (*models.Order, error)
	// TransitionPayment sets the payment status to `to` only if the current
	// status is one of `from`, as a single conditional write. An empty
	// orderStatus leaves the order status alone. The returned bool reports
	// whether the write happened; the order is returned either way.
	TransitionPayment(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, orderStatus models.OrderStatus) (*models.Order, bool, error)
	// Delete(id string) error // Orders are never deleted by this service.
}

func paymentStatusStrings(statuses []models.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
