package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// Create adds a new order.
func (r *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = order.Clone()
	return nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "order with ID %s not found", id)
	}
	clone := order.Clone()
	return &clone, nil
}

// List returns a page of orders, newest first.
func (r *MockOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		matched = append(matched, order.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := filter.offset()
	if start >= len(matched) {
		return []models.Order{}, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// Update applies mutate to a copy and stores it only if mutate succeeds.
func (r *MockOrderRepository) Update(ctx context.Context, id string, mutate OrderMutator) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "order with ID %s not found", id)
	}
	working := order.Clone()
	if err := mutate(&working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	r.orders[id] = working.Clone()
	return &working, nil
}

// TransitionPayment compares and sets the payment status under the write lock.
func (r *MockOrderRepository) TransitionPayment(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, orderStatus models.OrderStatus) (*models.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, false, apperrors.New(apperrors.KindNotFound, "order with ID %s not found", id)
	}

	applied := false
	for _, status := range from {
		if order.PaymentStatus == status {
			applied = true
			break
		}
	}
	if applied {
		order.PaymentStatus = to
		if orderStatus != "" {
			order.OrderStatus = orderStatus
		}
		order.UpdatedAt = time.Now()
		r.orders[id] = order
	}
	clone := order.Clone()
	return &clone, applied, nil
}

func (r *MockOrderRepository) snapshot() map[string]models.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	copied := make(map[string]models.Order, len(r.orders))
	for id, order := range r.orders {
		copied[id] = order.Clone()
	}
	return copied
}

func (r *MockOrderRepository) restore(orders map[string]models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = orders
}
