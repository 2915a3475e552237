package services_test

import (
	"context"
	"sync"
	"testing"

	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockGateway is a mock implementation of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateSession(ctx context.Context, order *models.Order) (*gateway.Session, error) {
	args := m.Called(order.ID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

func (m *MockGateway) RetrieveSession(ctx context.Context, sessionID string) (*gateway.Session, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

func (m *MockGateway) ParseEvent(payload []byte, signature string) (*gateway.Event, error) {
	args := m.Called(string(payload), signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Event), args.Error(1)
}

// recordingPublisher keeps every published routing key.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == routingKey {
			n++
		}
	}
	return n
}

type fixture struct {
	products  *repositories.MockProductRepository
	orders    *repositories.MockOrderRepository
	payments  *repositories.MockPaymentRepository
	users     *repositories.MockUserRepository
	events    *repositories.MockWebhookEventRepository
	gateway   *MockGateway
	publisher *recordingPublisher

	orderService   *services.OrderService
	paymentService *services.PaymentService

	buyer services.Principal
	lamp  *models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	f := &fixture{
		products:  repositories.NewMockProductRepository(),
		orders:    repositories.NewMockOrderRepository(),
		payments:  repositories.NewMockPaymentRepository(),
		users:     repositories.NewMockUserRepository(),
		events:    repositories.NewMockWebhookEventRepository(),
		gateway:   new(MockGateway),
		publisher: &recordingPublisher{},
	}

	f.lamp = &models.Product{Name: "Lamp", Price: decimal.RequireFromString("20.00"), Stock: 10}
	require.NoError(t, f.products.Create(ctx, f.lamp))

	user := &models.User{Username: "ana", Email: "ana@example.com", Password: "hashed"}
	require.NoError(t, f.users.Create(ctx, user))
	f.buyer = services.Principal{UserID: user.ID, Role: models.RoleUser}

	f.orderService = services.NewOrderService(f.orders, f.payments, f.products, f.publisher, "usd", logger)
	f.paymentService = services.NewPaymentService(services.PaymentDeps{
		Orders:        f.orders,
		Payments:      f.payments,
		Users:         f.users,
		WebhookEvents: f.events,
		Transactor:    repositories.NewMockTransactor(f.orders, f.payments),
		Gateway:       f.gateway,
		Publisher:     f.publisher,
		Logger:        logger,
	})
	return f
}

// placeOrder creates the reference order: one lamp at 20.00, quantity 2.
func (f *fixture) placeOrder(t *testing.T) *models.Order {
	t.Helper()
	order, err := f.orderService.CreateOrder(context.Background(), f.buyer, services.CreateOrderInput{
		Items: []pricing.LineRequest{{ProductID: f.lamp.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	return order
}

func paidSession(orderID, sessionID string, amount int64) *gateway.Session {
	return &gateway.Session{
		ID:              sessionID,
		OrderID:         orderID,
		PaymentIntentID: "pi_" + sessionID,
		AmountTotal:     amount,
		Currency:        "usd",
		Status:          "complete",
		PaymentStatus:   gateway.PaymentStatusPaid,
	}
}

func openSession(orderID, sessionID string, amount int64) *gateway.Session {
	return &gateway.Session{
		ID:            sessionID,
		URL:           "https://checkout.stripe.test/c/" + sessionID,
		OrderID:       orderID,
		AmountTotal:   amount,
		Currency:      "usd",
		Status:        "open",
		PaymentStatus: gateway.PaymentStatusUnpaid,
	}
}

func expiredSession(orderID, sessionID string, amount int64) *gateway.Session {
	s := openSession(orderID, sessionID, amount)
	s.URL = ""
	s.Status = gateway.SessionStatusExpired
	return s
}
