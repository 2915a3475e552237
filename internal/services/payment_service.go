package services

import (
	"context"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"

	"go.uber.org/zap"
)

// Signal sources, used in logs.
const (
	sourceRedirect = "redirect"
	sourceWebhook  = "webhook"
	sourceCancel   = "cancel"
)

// PaymentDeps wires PaymentService.
type PaymentDeps struct {
	Orders        repositories.OrderRepository
	Payments      repositories.PaymentRepository
	Users         repositories.UserRepository
	WebhookEvents repositories.WebhookEventRepository
	Transactor    repositories.Transactor
	Gateway       gateway.Gateway
	Publisher     EventPublisher
	Logger        *zap.Logger
}

// PaymentService opens checkout sessions and reconciles the processor's
// answers, from the browser redirect or the webhook, into order and payment
// state. Both channels go through the same transition, so whichever arrives
// first applies it and the other is a no-op.
type PaymentService struct {
	orders        repositories.OrderRepository
	payments      repositories.PaymentRepository
	users         repositories.UserRepository
	webhookEvents repositories.WebhookEventRepository
	tx            repositories.Transactor
	gateway       gateway.Gateway
	publisher     EventPublisher
	logger        *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(deps PaymentDeps) *PaymentService {
	return &PaymentService{
		orders:        deps.Orders,
		payments:      deps.Payments,
		users:         deps.Users,
		webhookEvents: deps.WebhookEvents,
		tx:            deps.Transactor,
		gateway:       deps.Gateway,
		publisher:     deps.Publisher,
		logger:        deps.Logger,
	}
}

// Confirmation is what the buyer sees after the success redirect.
type Confirmation struct {
	Order     *models.Order
	Buyer     *models.User
	SessionID string
}

// CancelResult reports what a cancel redirect did to the order.
type CancelResult struct {
	Order     *models.Order
	Outcome   string
	ResumeURL string // set while the session is still open
}

// InitiateCheckout opens a processor session for a pending order and records
// a pending payment attempt. A failed gateway call leaves every store untouched.
func (s *PaymentService) InitiateCheckout(ctx context.Context, caller Principal, orderID string) (*gateway.Session, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID {
		return nil, apperrors.New(apperrors.KindForbidden, "order %s belongs to another user", order.ID)
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, order)
	if err != nil {
		s.logger.Warn("checkout session creation failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, err
	}

	stored, applied, err := s.payments.Upsert(ctx, &models.Payment{
		OrderID:     order.ID,
		SessionID:   session.ID,
		AmountMinor: pricing.MinorUnits(order.TotalAmount),
		Currency:    order.Currency,
		Status:      models.PaymentRecordPending,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to record payment attempt for order %s", order.ID)
	}
	if !applied {
		if stored.Status == models.PaymentRecordSucceeded {
			return nil, apperrors.New(apperrors.KindAlreadyPaid, "order %s is already paid", order.ID)
		}
		return nil, apperrors.New(apperrors.KindConflictingState, "payment for order %s is %s", order.ID, stored.Status)
	}

	s.logger.Info("checkout session opened",
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.Int64("amount", stored.AmountMinor),
	)
	return session, nil
}

func checkPayable(order *models.Order) error {
	switch order.PaymentStatus {
	case models.PaymentPending:
		return nil
	case models.PaymentCompleted:
		return apperrors.New(apperrors.KindAlreadyPaid, "order %s is already paid", order.ID)
	default:
		return apperrors.New(apperrors.KindConflictingState, "order %s payment is %s", order.ID, order.PaymentStatus)
	}
}

// ConfirmRedirect handles the success redirect. The session id in the query
// string is only a hint: the session is fetched from the processor and only
// its answer is trusted.
func (s *PaymentService) ConfirmRedirect(ctx context.Context, sessionID string) (*Confirmation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "session_id is required")
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		s.logger.Warn("redirect session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	if session.OrderID == "" {
		return nil, apperrors.New(apperrors.KindNotFound, "session %s does not reference an order", sessionID)
	}
	if !session.Paid() {
		s.logger.Info("redirect for unpaid session",
			zap.String("session_id", session.ID),
			zap.String("order_id", session.OrderID),
			zap.String("payment_status", session.PaymentStatus),
		)
		return nil, apperrors.New(apperrors.KindConflictingState, "payment for order %s is not complete", session.OrderID)
	}

	order, _, err := s.applySuccess(ctx, sourceRedirect, session)
	if err != nil {
		return nil, err
	}

	buyer, err := s.users.GetByID(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("buyer lookup failed", zap.String("order_id", order.ID), zap.String("user_id", order.UserID), zap.Error(err))
		buyer = &models.User{ID: order.UserID}
	}
	buyer.Password = ""

	return &Confirmation{Order: order, Buyer: buyer, SessionID: session.ID}, nil
}

// HandleWebhook verifies and applies one webhook delivery and returns the
// recorded outcome. It returns nil only once the outcome has been stored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	event, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindInvalidSignature) {
			s.logger.Warn("webhook rejected", zap.Error(err))
		}
		return "", err
	}

	logger := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	seen, err := s.webhookEvents.Exists(ctx, event.ID)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err, "failed to check webhook event %s", event.ID)
	}
	if seen {
		logger.Info("webhook event already processed")
		return models.WebhookDuplicate, nil
	}

	outcome, orderID, err := s.dispatch(ctx, logger, event)
	if err != nil {
		return "", err
	}

	if err := s.webhookEvents.MarkProcessed(ctx, &models.WebhookEvent{
		EventID:   event.ID,
		EventType: event.Type,
		OrderID:   orderID,
		Outcome:   outcome,
	}); err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, err, "failed to record webhook event %s", event.ID)
	}

	logger.Info("webhook processed", zap.String("order_id", orderID), zap.String("outcome", outcome))
	return outcome, nil
}

func (s *PaymentService) dispatch(ctx context.Context, logger *zap.Logger, event *gateway.Event) (string, string, error) {
	var session *gateway.Session
	switch event.Type {
	case gateway.EventSessionCompleted, gateway.EventAsyncPaymentSucceeded,
		gateway.EventAsyncPaymentFailed, gateway.EventSessionExpired:
		session = event.Session
		if session == nil || session.OrderID == "" {
			logger.Error("checkout event without order reference")
			return "", "", apperrors.New(apperrors.KindInvalidInput, "event %s does not reference an order", event.ID)
		}
	default:
		logger.Debug("ignoring webhook event type")
		return models.WebhookIgnored, "", nil
	}

	switch {
	case event.Type == gateway.EventSessionCompleted && !session.Paid():
		logger.Info("checkout completed with payment still outstanding",
			zap.String("order_id", session.OrderID),
			zap.String("payment_status", session.PaymentStatus),
		)
		return models.WebhookIgnored, session.OrderID, nil

	case event.Type == gateway.EventSessionCompleted, event.Type == gateway.EventAsyncPaymentSucceeded:
		_, applied, err := s.applySuccess(ctx, sourceWebhook, session)
		if err != nil {
			return "", session.OrderID, err
		}
		return outcomeOf(applied), session.OrderID, nil

	default:
		_, outcome, err := s.applyFailure(ctx, sourceWebhook, session.OrderID, session)
		if err != nil {
			return "", session.OrderID, err
		}
		return outcome, session.OrderID, nil
	}
}

func outcomeOf(applied bool) string {
	if applied {
		return models.WebhookApplied
	}
	return models.WebhookDuplicate
}

// CancelRedirect handles the cancel redirect. The order's session is checked
// with the processor first: a paid session completes the order, an expired one
// fails it, and an open one leaves it pending.
func (s *PaymentService) CancelRedirect(ctx context.Context, orderID string) (*CancelResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "order_id is required")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.New(apperrors.KindConflictingState, "order %s has no checkout session", order.ID)
		}
		return nil, err
	}

	session, err := s.gateway.RetrieveSession(ctx, payment.SessionID)
	if err != nil {
		return nil, err
	}
	if session.OrderID != order.ID {
		s.logger.Error("session does not belong to order",
			zap.String("order_id", order.ID),
			zap.String("session_id", session.ID),
			zap.String("session_order_id", session.OrderID),
		)
		return nil, apperrors.New(apperrors.KindConflictingState, "session %s does not belong to order %s", session.ID, order.ID)
	}

	switch {
	case session.Paid():
		order, applied, err := s.applySuccess(ctx, sourceCancel, session)
		if err != nil {
			return nil, err
		}
		return &CancelResult{Order: order, Outcome: outcomeOf(applied)}, nil

	case session.Status == gateway.SessionStatusExpired:
		order, outcome, err := s.applyFailure(ctx, sourceCancel, order.ID, session)
		if err != nil {
			return nil, err
		}
		return &CancelResult{Order: order, Outcome: outcome}, nil

	default:
		// The cancel link carries no credential, so an open session is left
		// for the buyer to resume. Its expiry arrives as a webhook.
		s.logger.Info("cancel redirect for open session",
			zap.String("order_id", order.ID),
			zap.String("session_id", session.ID),
			zap.String("session_status", session.Status),
		)
		return &CancelResult{Order: order, Outcome: models.WebhookIgnored, ResumeURL: session.URL}, nil
	}
}

// applySuccess moves the order to completed and the payment record to
// succeeded in one transaction. An order that is already completed is
// returned unchanged with applied=false.
func (s *PaymentService) applySuccess(ctx context.Context, source string, session *gateway.Session) (*models.Order, bool, error) {
	logger := s.logger.With(
		zap.String("source", source),
		zap.String("order_id", session.OrderID),
		zap.String("session_id", session.ID),
	)

	var order *models.Order
	var applied bool
	err := s.tx.RunInTx(ctx, func(stores repositories.Stores) error {
		current, err := stores.Orders.GetByID(ctx, session.OrderID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				logger.Error("confirmation for unknown order")
			}
			return err
		}
		if current.PaymentStatus == models.PaymentCompleted {
			order = current
			return nil
		}

		updated, ok, err := stores.Orders.TransitionPayment(ctx, current.ID,
			[]models.PaymentStatus{models.PaymentPending, models.PaymentFailed},
			models.PaymentCompleted, models.OrderProcessing)
		if err != nil {
			return err
		}
		order = updated
		if !ok {
			return nil
		}
		applied = true

		checkAmount(logger, updated, session)

		currency := session.Currency
		if currency == "" {
			currency = updated.Currency
		}
		_, _, err = stores.Payments.Upsert(ctx, &models.Payment{
			OrderID:         updated.ID,
			SessionID:       session.ID,
			PaymentIntentID: session.PaymentIntentID,
			AmountMinor:     session.AmountTotal,
			Currency:        currency,
			Status:          models.PaymentRecordSucceeded,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if applied {
		logger.Info("order marked paid")
		publishOrderEvent(ctx, s.publisher, s.logger, EventOrderPaid, order)
	} else {
		logger.Info("confirmation was a no-op", zap.String("payment_status", string(order.PaymentStatus)))
	}
	return order, applied, nil
}

// applyFailure marks a pending order failed and returns the outcome.
// Completion is sticky: a paid order is returned unchanged as a duplicate. A
// signal for a session other than the one the payment record tracks is
// ignored, so an abandoned earlier checkout cannot fail the live one.
func (s *PaymentService) applyFailure(ctx context.Context, source, orderID string, session *gateway.Session) (*models.Order, string, error) {
	logger := s.logger.With(zap.String("source", source), zap.String("order_id", orderID))

	var order *models.Order
	outcome := models.WebhookDuplicate
	err := s.tx.RunInTx(ctx, func(stores repositories.Stores) error {
		if session != nil && session.ID != "" {
			current, err := stores.Payments.FindByOrderID(ctx, orderID)
			switch {
			case err == nil:
				if current.SessionID != "" && current.SessionID != session.ID {
					order, err = stores.Orders.GetByID(ctx, orderID)
					if err != nil {
						return err
					}
					logger.Info("failure signal for superseded session",
						zap.String("session_id", session.ID),
						zap.String("current_session_id", current.SessionID),
					)
					outcome = models.WebhookIgnored
					return nil
				}
			case !apperrors.IsKind(err, apperrors.KindNotFound):
				return err
			}
		}

		updated, ok, err := stores.Orders.TransitionPayment(ctx, orderID,
			[]models.PaymentStatus{models.PaymentPending},
			models.PaymentFailed, "")
		if err != nil {
			if apperrors.IsKind(err, apperrors.KindNotFound) {
				logger.Error("failure signal for unknown order")
			}
			return err
		}
		order = updated
		if !ok {
			return nil
		}
		outcome = models.WebhookApplied

		record := &models.Payment{
			OrderID:     updated.ID,
			AmountMinor: pricing.MinorUnits(updated.TotalAmount),
			Currency:    updated.Currency,
			Status:      models.PaymentRecordFailed,
		}
		if session != nil {
			record.SessionID = session.ID
			record.PaymentIntentID = session.PaymentIntentID
		}
		_, _, err = stores.Payments.Upsert(ctx, record)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	switch outcome {
	case models.WebhookApplied:
		logger.Info("order payment failed")
		publishOrderEvent(ctx, s.publisher, s.logger, EventOrderPaymentFailed, order)
	case models.WebhookDuplicate:
		logger.Info("failure signal ignored", zap.String("payment_status", string(order.PaymentStatus)))
	}
	return order, outcome, nil
}

// checkAmount warns when the processor charged something other than the
// order total. The processor's figure is what gets recorded.
func checkAmount(logger *zap.Logger, order *models.Order, session *gateway.Session) {
	expected := pricing.MinorUnits(order.TotalAmount)
	if session.AmountTotal != expected || (session.Currency != "" && !strings.EqualFold(session.Currency, order.Currency)) {
		logger.Warn("reconciliation amount mismatch",
			zap.Int64("expected_amount", expected),
			zap.String("expected_currency", order.Currency),
			zap.Int64("charged_amount", session.AmountTotal),
			zap.String("charged_currency", session.Currency),
		)
	}
}
