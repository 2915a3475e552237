package handlers

import (
	"bytes"
	"html/template"

	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var confirmationPage = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Payment Successful</title>
</head>
<body>
  <h1>Payment Successful</h1>
  <p>Thank you{{if .BuyerName}}, {{.BuyerName}}{{end}}! Your payment for order <strong>{{.OrderID}}</strong> was received.</p>
  {{if .BuyerEmail}}<p>A receipt will be sent to {{.BuyerEmail}}.</p>{{end}}
  <ul>
  {{range .Lines}}<li>{{.Name}} - {{.Quantity}} x {{.UnitPrice}} = {{.Subtotal}}</li>
  {{end}}</ul>
  <p>Total: <strong>{{.Total}} {{.Currency}}</strong></p>
</body>
</html>
`))

type confirmationLine struct {
	Name      string
	Quantity  int
	UnitPrice string
	Subtotal  string
}

type confirmationView struct {
	OrderID    string
	BuyerName  string
	BuyerEmail string
	Lines      []confirmationLine
	Total      string
	Currency   string
}

func newConfirmationView(confirmation *services.Confirmation) confirmationView {
	order := confirmation.Order
	view := confirmationView{
		OrderID:  order.ID,
		Total:    order.TotalAmount.StringFixed(pricing.MinorUnitExponent),
		Currency: order.Currency,
	}
	if confirmation.Buyer != nil {
		view.BuyerName = confirmation.Buyer.Username
		view.BuyerEmail = confirmation.Buyer.Email
	}
	for _, item := range order.Items {
		view.Lines = append(view.Lines, confirmationLine{
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(pricing.MinorUnitExponent),
			Subtotal:  item.Subtotal().StringFixed(pricing.MinorUnitExponent),
		})
	}
	return view
}

// PaymentHandler serves the browser redirects and the processor webhook.
// None of its routes carry a bearer token.
type PaymentHandler struct {
	service *services.PaymentService
	logger  *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the redirect and webhook routes.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/payment/success", h.HandlePaymentSuccess)
	router.Get("/payment/cancel", h.HandlePaymentCancel)
	router.Post("/webhooks/stripe", h.HandleStripeWebhook)
}

// HandlePaymentSuccess confirms the session named in the query string and
// renders the confirmation page.
func (h *PaymentHandler) HandlePaymentSuccess(c *fiber.Ctx) error {
	confirmation, err := h.service.ConfirmRedirect(c.UserContext(), c.Query("session_id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	var page bytes.Buffer
	if err := confirmationPage.Execute(&page, newConfirmationView(confirmation)); err != nil {
		h.logger.Error("failed to render confirmation page", zap.String("order_id", confirmation.Order.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("could not render confirmation")
	}
	c.Type("html", "utf-8")
	return c.Send(page.Bytes())
}

// HandlePaymentCancel reports the checkout state after the buyer backs out.
func (h *PaymentHandler) HandlePaymentCancel(c *fiber.Ctx) error {
	result, err := h.service.CancelRedirect(c.UserContext(), c.Query("order_id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	body := fiber.Map{
		"order_id":       result.Order.ID,
		"payment_status": result.Order.PaymentStatus,
	}
	switch result.Order.PaymentStatus {
	case models.PaymentCompleted:
		body["message"] = "Payment was already completed"
	case models.PaymentFailed:
		body["message"] = "Payment was cancelled"
	default:
		body["message"] = "Checkout is still open"
		if result.ResumeURL != "" {
			body["resume_url"] = result.ResumeURL
		}
	}
	return c.JSON(body)
}

// HandleStripeWebhook answers 200 only after the event's effect is stored,
// so the processor retries anything that failed.
func (h *PaymentHandler) HandleStripeWebhook(c *fiber.Ctx) error {
	outcome, err := h.service.HandleWebhook(c.UserContext(), c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"received": true,
		"outcome":  outcome,
	})
}
