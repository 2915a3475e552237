package handlers

import (
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	payments *services.PaymentService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, payments *services.PaymentService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		payments: payments,
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes registers the order routes. The router must already
// authenticate its callers.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", middleware.AdminOnly(), h.HandleGetOrders)
	orderRoutes.Get("/mine", h.HandleGetMyOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Patch("/:id", h.HandleUpdateOrder)
	orderRoutes.Post("/:id/payment", h.HandleCreatePayment)
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	Items           []pricing.LineRequest  `json:"items" validate:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
}

// ShippingPatch carries the shipping fields to change.
type ShippingPatch struct {
	Street     *string `json:"street"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	PostalCode *string `json:"postal_code"`
	Country    *string `json:"country"`
}

// UpdateOrderRequest is the body of PATCH /orders/:id.
type UpdateOrderRequest struct {
	ProductID       string         `json:"product_id"`
	Quantity        *int           `json:"quantity" validate:"omitempty,min=1"`
	ShippingAddress *ShippingPatch `json:"shipping_address"`
}

// HandleGetOrders lists every order. Admins only.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	page, err := h.service.ListAllOrders(c.UserContext(), caller, c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(page)
}

// HandleGetMyOrders lists the caller's orders.
func (h *OrderHandler) HandleGetMyOrders(c *fiber.Ctx) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	page, err := h.service.ListMyOrders(c.UserContext(), caller, c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(page)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	order, err := h.service.GetOrder(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(order)
}

// HandleCreateOrder creates a new order for the caller.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	createdOrder, err := h.service.CreateOrder(c.UserContext(), caller, services.CreateOrderInput{
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(createdOrder)
}

// HandleUpdateOrder changes a line item quantity and/or shipping fields.
func (h *OrderHandler) HandleUpdateOrder(c *fiber.Ctx) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	var req UpdateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	in := services.UpdateOrderInput{ProductID: req.ProductID, Quantity: req.Quantity}
	if s := req.ShippingAddress; s != nil {
		in.Street, in.City, in.State, in.PostalCode, in.Country = s.Street, s.City, s.State, s.PostalCode, s.Country
	}

	updated, err := h.service.UpdateOrder(c.UserContext(), caller, c.Params("id"), in)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(updated)
}

// HandleCreatePayment opens a checkout session for the order.
func (h *OrderHandler) HandleCreatePayment(c *fiber.Ctx) error {
	caller, err := principal(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	session, err := h.payments.InitiateCheckout(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{
		"session_id": session.ID,
		"url":        session.URL,
	})
}
