package services

import (
	"context"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles business logic related to orders.
type OrderService struct {
	orderRepo repositories.OrderRepository
	payments  repositories.PaymentRepository
	pricing   *pricing.Engine
	publisher EventPublisher
	currency  string
	logger    *zap.Logger
}

// NewOrderService creates a new OrderService. A nil publisher disables events.
func NewOrderService(orderRepo repositories.OrderRepository, payments repositories.PaymentRepository, catalog pricing.Catalog, publisher EventPublisher, currency string, logger *zap.Logger) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		payments:  payments,
		pricing:   pricing.NewEngine(catalog),
		publisher: publisher,
		currency:  currency,
		logger:    logger,
	}
}

// CreateOrderInput is a buyer's request for a new order.
type CreateOrderInput struct {
	Items           []pricing.LineRequest
	ShippingAddress models.ShippingAddress
}

// UpdateOrderInput carries a partial order update. Nil fields are left alone.
// ProductID picks the line item Quantity applies to; empty means the first.
type UpdateOrderInput struct {
	ProductID  string
	Quantity   *int
	Street     *string
	City       *string
	State      *string
	PostalCode *string
	Country    *string
}

func (in UpdateOrderInput) empty() bool {
	return in.Quantity == nil && in.Street == nil && in.City == nil &&
		in.State == nil && in.PostalCode == nil && in.Country == nil
}

// OrderPage is one page of a listing.
type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// CreateOrder prices the requested lines and stores a pending order.
func (s *OrderService) CreateOrder(ctx context.Context, caller Principal, in CreateOrderInput) (*models.Order, error) {
	items, total, err := s.pricing.Price(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          caller.UserID,
		Items:           items,
		TotalAmount:     total,
		Currency:        s.currency,
		ShippingAddress: in.ShippingAddress,
		PaymentStatus:   models.PaymentPending,
		OrderStatus:     models.OrderPending,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to save order")
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalAmount.StringFixed(pricing.MinorUnitExponent)),
	)
	publishOrderEvent(ctx, s.publisher, s.logger, EventOrderCreated, order)
	return order, nil
}

// GetOrder returns an order the caller owns, or any order for admins.
func (s *OrderService) GetOrder(ctx context.Context, caller Principal, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := caller.canAccess(order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListMyOrders pages through the caller's own orders.
func (s *OrderService) ListMyOrders(ctx context.Context, caller Principal, page, limit int) (*OrderPage, error) {
	return s.list(ctx, repositories.OrderFilter{UserID: caller.UserID, Page: page, Limit: limit})
}

// ListAllOrders pages through every order. Admins only.
func (s *OrderService) ListAllOrders(ctx context.Context, caller Principal, page, limit int) (*OrderPage, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.New(apperrors.KindForbidden, "listing all orders requires the admin role")
	}
	return s.list(ctx, repositories.OrderFilter{Page: page, Limit: limit})
}

func (s *OrderService) list(ctx context.Context, filter repositories.OrderFilter) (*OrderPage, error) {
	filter = filter.Normalize()
	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to list orders")
	}
	return &OrderPage{Orders: orders, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// UpdateOrder applies a quantity change and/or shipping edits. The total is
// moved by the quantity delta times the snapshotted unit price; the catalog
// is never consulted again.
func (s *OrderService) UpdateOrder(ctx context.Context, caller Principal, id string, in UpdateOrderInput) (*models.Order, error) {
	if in.empty() {
		return nil, apperrors.New(apperrors.KindInvalidInput, "no fields to update")
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		return nil, apperrors.New(apperrors.KindInvalidInput, "quantity must be at least 1")
	}
	if in.Quantity != nil {
		if err := s.checkNoOpenCheckout(ctx, caller, id); err != nil {
			return nil, err
		}
	}

	updated, err := s.orderRepo.Update(ctx, id, func(order *models.Order) error {
		if err := caller.canAccess(order); err != nil {
			return err
		}
		if in.Quantity != nil {
			if err := changeQuantity(order, in.ProductID, *in.Quantity); err != nil {
				return err
			}
		}
		applyShipping(&order.ShippingAddress, in)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order updated", zap.String("order_id", updated.ID))
	return updated, nil
}

// checkNoOpenCheckout rejects quantity edits while a checkout session for the
// order is pending, since the processor would charge the old total.
func (s *OrderService) checkNoOpenCheckout(ctx context.Context, caller Principal, id string) error {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := caller.canAccess(order); err != nil {
		return err
	}

	payment, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil
		}
		return apperrors.Wrap(apperrors.KindInternal, err, "failed to load payment for order %s", order.ID)
	}
	if payment.Status == models.PaymentRecordPending {
		return apperrors.New(apperrors.KindConflictingState, "order %s has a checkout in progress (session %s)", order.ID, payment.SessionID)
	}
	return nil
}

func changeQuantity(order *models.Order, productID string, quantity int) error {
	switch order.PaymentStatus {
	case models.PaymentCompleted, models.PaymentRefunded:
		return apperrors.New(apperrors.KindConflictingState, "order %s is %s; its pricing is frozen", order.ID, order.PaymentStatus)
	}
	if len(order.Items) == 0 {
		return apperrors.New(apperrors.KindInvalidInput, "order %s has no line items", order.ID)
	}

	idx := 0
	if productID != "" {
		idx = order.ItemIndex(productID)
		if idx < 0 {
			return apperrors.New(apperrors.KindNotFound, "order %s has no line item for product %s", order.ID, productID)
		}
	}

	item := &order.Items[idx]
	if !item.UnitPrice.IsPositive() {
		return apperrors.New(apperrors.KindInvalidInput, "line item for product %s has no valid price snapshot", item.ProductID)
	}
	delta := decimal.NewFromInt(int64(quantity - item.Quantity))
	order.TotalAmount = order.TotalAmount.Add(item.UnitPrice.Mul(delta))
	item.Quantity = quantity
	return nil
}

func applyShipping(addr *models.ShippingAddress, in UpdateOrderInput) {
	if in.Street != nil {
		addr.Street = *in.Street
	}
	if in.City != nil {
		addr.City = *in.City
	}
	if in.State != nil {
		addr.State = *in.State
	}
	if in.PostalCode != nil {
		addr.PostalCode = *in.PostalCode
	}
	if in.Country != nil {
		addr.Country = *in.Country
	}
}
