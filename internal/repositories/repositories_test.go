package repositories_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/apperrors"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB gives each test its own in-memory SQLite database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repositories.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newOrder(userID string) *models.Order {
	return &models.Order{
		UserID: userID,
		Items: []models.OrderItem{
			{ProductID: "p-1", ProductName: "Lamp", Quantity: 2, UnitPrice: decimal.RequireFromString("20.00")},
			{ProductID: "p-2", ProductName: "Desk", Quantity: 1, UnitPrice: decimal.RequireFromString("0.30")},
		},
		TotalAmount:   decimal.RequireFromString("40.30"),
		Currency:      "usd",
		PaymentStatus: models.PaymentPending,
		OrderStatus:   models.OrderPending,
	}
}

type orderStores struct {
	name   string
	orders repositories.OrderRepository
}

func orderRepos(t *testing.T) []orderStores {
	return []orderStores{
		{name: "gorm", orders: repositories.NewGORMOrderRepository(openTestDB(t))},
		{name: "memory", orders: repositories.NewMockOrderRepository()},
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	for _, tc := range orderRepos(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			order := newOrder("u-1")
			require.NoError(t, tc.orders.Create(ctx, order))
			require.NotEmpty(t, order.ID)

			got, err := tc.orders.GetByID(ctx, order.ID)
			require.NoError(t, err)
			require.Len(t, got.Items, 2)
			assert.Equal(t, "Lamp", got.Items[0].ProductName)
			assert.Equal(t, "p-2", got.Items[1].ProductID)
			assert.True(t, decimal.RequireFromString("40.30").Equal(got.TotalAmount))
			assert.Equal(t, models.PaymentPending, got.PaymentStatus)

			_, err = tc.orders.GetByID(ctx, "missing")
			assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		})
	}
}

func TestOrderRepository_ListFiltersByUser(t *testing.T) {
	for _, tc := range orderRepos(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, tc.orders.Create(ctx, newOrder("u-1")))
			require.NoError(t, tc.orders.Create(ctx, newOrder("u-1")))
			require.NoError(t, tc.orders.Create(ctx, newOrder("u-2")))

			mine, total, err := tc.orders.List(ctx, repositories.OrderFilter{UserID: "u-1"})
			require.NoError(t, err)
			assert.Equal(t, int64(2), total)
			assert.Len(t, mine, 2)

			page, total, err := tc.orders.List(ctx, repositories.OrderFilter{Page: 2, Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, int64(3), total)
			assert.Len(t, page, 1)
		})
	}
}

func TestOrderRepository_UpdateAppliesMutator(t *testing.T) {
	for _, tc := range orderRepos(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			order := newOrder("u-1")
			require.NoError(t, tc.orders.Create(ctx, order))

			updated, err := tc.orders.Update(ctx, order.ID, func(o *models.Order) error {
				o.Items[0].Quantity = 3
				o.TotalAmount = decimal.RequireFromString("60.30")
				o.ShippingAddress.City = "Lisbon"
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 3, updated.Items[0].Quantity)

			got, err := tc.orders.GetByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, got.Items[0].Quantity)
			assert.Equal(t, "Lisbon", got.ShippingAddress.City)
			assert.True(t, decimal.RequireFromString("60.30").Equal(got.TotalAmount))
		})
	}
}

func TestOrderRepository_UpdateMutatorErrorLeavesOrder(t *testing.T) {
	for _, tc := range orderRepos(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			order := newOrder("u-1")
			require.NoError(t, tc.orders.Create(ctx, order))

			refused := apperrors.New(apperrors.KindConflictingState, "order is paid")
			_, err := tc.orders.Update(ctx, order.ID, func(o *models.Order) error {
				o.Items[0].Quantity = 9
				return refused
			})
			assert.True(t, errors.Is(err, apperrors.ErrConflictingState))

			got, err := tc.orders.GetByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, got.Items[0].Quantity)
		})
	}
}

func TestOrderRepository_TransitionPaymentIsConditional(t *testing.T) {
	for _, tc := range orderRepos(t) {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			order := newOrder("u-1")
			require.NoError(t, tc.orders.Create(ctx, order))

			got, applied, err := tc.orders.TransitionPayment(ctx, order.ID,
				[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed},
				models.PaymentCompleted, models.OrderProcessing)
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
			assert.Equal(t, models.OrderProcessing, got.OrderStatus)

			got, applied, err = tc.orders.TransitionPayment(ctx, order.ID,
				[]models.PaymentStatus{models.PaymentPending},
				models.PaymentFailed, "")
			require.NoError(t, err)
			assert.False(t, applied)
			assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)

			_, _, err = tc.orders.TransitionPayment(ctx, "missing",
				[]models.PaymentStatus{models.PaymentPending}, models.PaymentFailed, "")
			assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		})
	}
}

func paymentRepos(t *testing.T) map[string]repositories.PaymentRepository {
	return map[string]repositories.PaymentRepository{
		"gorm":   repositories.NewGORMPaymentRepository(openTestDB(t)),
		"memory": repositories.NewMockPaymentRepository(),
	}
}

func TestPaymentRepository_UpsertNeverMovesBackwards(t *testing.T) {
	for name, payments := range paymentRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := payments.FindByOrderID(ctx, "o-1")
			assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

			stored, applied, err := payments.Upsert(ctx, &models.Payment{
				OrderID: "o-1", SessionID: "cs_1", AmountMinor: 4030, Currency: "usd", Status: models.PaymentRecordPending,
			})
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, "cs_1", stored.SessionID)

			stored, applied, err = payments.Upsert(ctx, &models.Payment{
				OrderID: "o-1", SessionID: "cs_2", AmountMinor: 5000, Currency: "usd", Status: models.PaymentRecordPending,
			})
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, "cs_2", stored.SessionID)
			assert.Equal(t, int64(5000), stored.AmountMinor)

			stored, applied, err = payments.Upsert(ctx, &models.Payment{
				OrderID: "o-1", PaymentIntentID: "pi_1", AmountMinor: 5000, Currency: "usd", Status: models.PaymentRecordSucceeded,
			})
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, models.PaymentRecordSucceeded, stored.Status)
			assert.Equal(t, "cs_2", stored.SessionID)
			assert.Equal(t, "pi_1", stored.PaymentIntentID)
			assert.NotNil(t, stored.SucceededAt)

			for _, status := range []models.PaymentRecordStatus{models.PaymentRecordPending, models.PaymentRecordFailed} {
				stored, applied, err = payments.Upsert(ctx, &models.Payment{
					OrderID: "o-1", AmountMinor: 1, Currency: "usd", Status: status,
				})
				require.NoError(t, err)
				assert.False(t, applied, status)
				assert.Equal(t, models.PaymentRecordSucceeded, stored.Status)
				assert.Equal(t, int64(5000), stored.AmountMinor)
			}
		})
	}
}

func TestPaymentRepository_SuccessOverridesFailure(t *testing.T) {
	for name, payments := range paymentRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _, err := payments.Upsert(ctx, &models.Payment{
				OrderID: "o-1", AmountMinor: 100, Currency: "usd", Status: models.PaymentRecordFailed,
			})
			require.NoError(t, err)

			stored, applied, err := payments.Upsert(ctx, &models.Payment{
				OrderID: "o-1", AmountMinor: 100, Currency: "usd", Status: models.PaymentRecordSucceeded,
			})
			require.NoError(t, err)
			assert.True(t, applied)
			assert.Equal(t, models.PaymentRecordSucceeded, stored.Status)
			assert.NotNil(t, stored.FailedAt)
		})
	}
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	memOrders := repositories.NewMockOrderRepository()
	memPayments := repositories.NewMockPaymentRepository()

	cases := []struct {
		name   string
		orders repositories.OrderRepository
		tx     repositories.Transactor
	}{
		{name: "gorm", orders: repositories.NewGORMOrderRepository(db), tx: repositories.NewGORMTransactor(db)},
		{name: "memory", orders: memOrders, tx: repositories.NewMockTransactor(memOrders, memPayments)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			order := newOrder("u-1")
			require.NoError(t, tc.orders.Create(ctx, order))

			boom := errors.New("payment write failed")
			err := tc.tx.RunInTx(ctx, func(s repositories.Stores) error {
				if _, _, err := s.Orders.TransitionPayment(ctx, order.ID,
					[]models.PaymentStatus{models.PaymentPending}, models.PaymentCompleted, models.OrderProcessing); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := tc.orders.GetByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentPending, got.PaymentStatus)

			err = tc.tx.RunInTx(ctx, func(s repositories.Stores) error {
				if _, _, err := s.Orders.TransitionPayment(ctx, order.ID,
					[]models.PaymentStatus{models.PaymentPending}, models.PaymentCompleted, models.OrderProcessing); err != nil {
					return err
				}
				_, _, err := s.Payments.Upsert(ctx, &models.Payment{
					OrderID: order.ID, AmountMinor: 4030, Currency: "usd", Status: models.PaymentRecordSucceeded,
				})
				return err
			})
			require.NoError(t, err)

			got, err = tc.orders.GetByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
		})
	}
}

func TestGORMTransactor_ConcurrentSignalsConverge(t *testing.T) {
	db := openTestDB(t)
	orders := repositories.NewGORMOrderRepository(db)
	payments := repositories.NewGORMPaymentRepository(db)
	tx := repositories.NewGORMTransactor(db)
	ctx := context.Background()

	order := newOrder("u-1")
	require.NoError(t, orders.Create(ctx, order))

	var succeeded, failed int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		success := i%2 == 0
		go func() {
			defer wg.Done()
			err := tx.RunInTx(ctx, func(s repositories.Stores) error {
				from := []models.PaymentStatus{models.PaymentPending}
				to, orderStatus, record := models.PaymentFailed, models.OrderStatus(""), models.PaymentRecordFailed
				if success {
					from = append(from, models.PaymentFailed)
					to, orderStatus, record = models.PaymentCompleted, models.OrderProcessing, models.PaymentRecordSucceeded
				}
				_, applied, err := s.Orders.TransitionPayment(ctx, order.ID, from, to, orderStatus)
				if err != nil || !applied {
					return err
				}
				if success {
					atomic.AddInt32(&succeeded, 1)
				} else {
					atomic.AddInt32(&failed, 1)
				}
				_, _, err = s.Payments.Upsert(ctx, &models.Payment{
					OrderID: order.ID, SessionID: "cs_1", AmountMinor: 4030, Currency: "usd", Status: record,
				})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&succeeded))
	assert.LessOrEqual(t, atomic.LoadInt32(&failed), int32(1))

	got, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, models.OrderProcessing, got.OrderStatus)

	record, err := payments.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRecordSucceeded, record.Status)
}

func TestUserRepository_Lookups(t *testing.T) {
	repos := map[string]repositories.UserRepository{
		"gorm":   repositories.NewGORMUserRepository(openTestDB(t)),
		"memory": repositories.NewMockUserRepository(),
	}
	for name, users := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := &models.User{Username: "ana", Email: "ana@example.com", Password: "hashed"}
			require.NoError(t, users.Create(ctx, user))
			assert.Equal(t, models.RoleUser, user.Role)

			byName, err := users.GetByUsername(ctx, "ana")
			require.NoError(t, err)
			assert.Equal(t, user.ID, byName.ID)

			byEmail, err := users.GetByEmail(ctx, "ana@example.com")
			require.NoError(t, err)
			assert.Equal(t, user.ID, byEmail.ID)

			_, err = users.GetByID(ctx, "missing")
			assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
		})
	}
}

func TestWebhookEventRepository_MarkProcessedOnce(t *testing.T) {
	repos := map[string]repositories.WebhookEventRepository{
		"gorm":   repositories.NewGORMWebhookEventRepository(openTestDB(t)),
		"memory": repositories.NewMockWebhookEventRepository(),
	}
	for name, events := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seen, err := events.Exists(ctx, "evt_1")
			require.NoError(t, err)
			assert.False(t, seen)

			require.NoError(t, events.MarkProcessed(ctx, &models.WebhookEvent{
				EventID: "evt_1", EventType: "checkout.session.completed", OrderID: "o-1", Outcome: models.WebhookApplied,
			}))
			require.NoError(t, events.MarkProcessed(ctx, &models.WebhookEvent{
				EventID: "evt_1", EventType: "checkout.session.completed", OrderID: "o-1", Outcome: models.WebhookDuplicate,
			}))

			seen, err = events.Exists(ctx, "evt_1")
			require.NoError(t, err)
			assert.True(t, seen)
		})
	}
}
