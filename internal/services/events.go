package services

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Routing keys for order lifecycle events.
const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderPaymentFailed = "order.payment_failed"
)

// EventPublisher sends an encoded event to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// OrderEvent is the message body published for every order event.
type OrderEvent struct {
	Type          string               `json:"type"`
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	Currency      string               `json:"currency"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	OrderStatus   models.OrderStatus   `json:"order_status"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// publishOrderEvent is fire-and-forget: failures are logged and never reach
// the caller, whose state change has already committed.
func publishOrderEvent(ctx context.Context, publisher EventPublisher, logger *zap.Logger, routingKey string, order *models.Order) {
	if publisher == nil {
		return
	}

	body, err := json.Marshal(OrderEvent{
		Type:          routingKey,
		OrderID:       order.ID,
		UserID:        order.UserID,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		logger.Error("failed to marshal order event", zap.String("order_id", order.ID), zap.Error(err))
		return
	}

	if err := publisher.Publish(ctx, routingKey, body); err != nil {
		logger.Warn("failed to publish order event",
			zap.String("routing_key", routingKey),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return
	}
	logger.Debug("published order event", zap.String("routing_key", routingKey), zap.String("order_id", order.ID))
}

// LogOrderEvents returns a consumer handler that records each order event.
// Undecodable messages are logged and dropped rather than requeued forever.
func LogOrderEvents(logger *zap.Logger) func(routingKey string, body []byte) error {
	return func(routingKey string, body []byte) error {
		var event OrderEvent
		if err := json.Unmarshal(body, &event); err != nil {
			logger.Error("dropping malformed order event", zap.String("routing_key", routingKey), zap.Error(err))
			return nil
		}
		logger.Info("order event received",
			zap.String("routing_key", routingKey),
			zap.String("order_id", event.OrderID),
			zap.String("payment_status", string(event.PaymentStatus)),
			zap.String("order_status", string(event.OrderStatus)),
		)
		return nil
	}
}
