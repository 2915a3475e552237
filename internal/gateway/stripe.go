package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/pricing"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

// StripeGateway implements Gateway with Stripe Checkout.
type StripeGateway struct {
	sessions      *session.Client
	webhookSecret string
	currency      string
	timeout       time.Duration
	successURL    string
	cancelURL     func(orderID string) string
	logger        *zap.Logger
}

// NewStripeGateway builds a client bound to its own backend, so nothing is
// read from or written to the stripe package globals.
func NewStripeGateway(cfg *config.Config, logger *zap.Logger) *StripeGateway {
	apiURL := cfg.Stripe.APIURL
	if apiURL == "" {
		apiURL = stripe.APIURL
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Stripe.Timeout},
		URL:               stripe.String(apiURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.Named("stripe").Sugar(),
	})

	return &StripeGateway{
		sessions:      &session.Client{B: backend, Key: cfg.Stripe.SecretKey},
		webhookSecret: cfg.Stripe.WebhookSecret,
		currency:      cfg.Stripe.Currency,
		timeout:       cfg.Stripe.Timeout,
		successURL:    cfg.SuccessURL(),
		cancelURL:     cfg.CancelURL,
		logger:        logger,
	}
}

// CreateSession opens a payment-mode checkout session with one price entry
// per line item, using the unit price captured when the order was placed.
func (g *StripeGateway) CreateSession(ctx context.Context, order *models.Order) (*Session, error) {
	if len(order.Items) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, "order %s has no line items", order.ID)
	}

	currency := order.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL(order.ID)),
		ClientReferenceID: stripe.String(order.ID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataOrderID: order.ID},
		},
	}
	for _, item := range order.Items {
		name := item.ProductName
		if name == "" {
			name = item.ProductID
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
				UnitAmount: stripe.Int64(pricing.MinorUnits(item.UnitPrice)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}
	params.AddMetadata(MetadataOrderID, order.ID)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, classify(err, "create checkout session for order "+order.ID)
	}
	g.logger.Debug("checkout session created",
		zap.String("order_id", order.ID),
		zap.String("session_id", s.ID),
	)
	return toSession(s), nil
}

// RetrieveSession fetches a session by id.
func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "session id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.sessions.Get(sessionID, params)
	if err != nil {
		return nil, classify(err, "retrieve checkout session "+sessionID)
	}
	return toSession(s), nil
}

// ParseEvent checks the Stripe-Signature header, then decodes the event.
// Verification failures carry no detail beyond their kind.
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*Event, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, g.webhookSecret, webhook.DefaultTolerance); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidSignature, err, "invalid webhook signature")
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, err, "malformed webhook payload")
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil && strings.HasPrefix(out.Type, "checkout.session.") {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidInput, err, "malformed checkout session in event %s", event.ID)
		}
		out.Session = toSession(&s)
	}
	return out, nil
}

func toSession(s *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		OrderID:       s.Metadata[MetadataOrderID],
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
	}
	if out.OrderID == "" {
		out.OrderID = s.ClientReferenceID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

// classify sorts processor errors into not-found, rejected request and
// unavailable. Anything that is not a Stripe API error is a transport
// failure or timeout.
func classify(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return apperrors.Wrap(apperrors.KindNotFound, err, "%s", op)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return apperrors.Wrap(apperrors.KindGatewayUnavailable, err, "%s", op)
		case stripeErr.HTTPStatusCode >= http.StatusBadRequest:
			return apperrors.Wrap(apperrors.KindInvalidInput, err, "%s", op)
		}
	}
	return apperrors.Wrap(apperrors.KindGatewayUnavailable, err, "%s", op)
}
