package handlers

import (
	"errors"
	"fmt"

	"storefront/internal/apperrors"
	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// writeError maps err onto its status and the {"error": {...}} body. Internal
// errors are logged with their cause and answered with a generic message.
func writeError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	kind := apperrors.KindOf(err)
	message := err.Error()

	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Err != nil && kind != apperrors.KindInternal {
		// The wrapped cause may carry processor or driver detail.
		message = appErr.Message
	}

	switch kind {
	case apperrors.KindInternal:
		logger.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		message = "internal server error"
	case apperrors.KindInvalidSignature:
		message = apperrors.ErrInvalidSignature.Message
	default:
		logger.Debug("request rejected", zap.String("path", c.Path()), zap.String("kind", string(kind)), zap.Error(err))
	}

	return c.Status(apperrors.StatusFor(kind)).JSON(fiber.Map{
		"error": fiber.Map{"kind": kind, "message": message},
	})
}

func validationError(c *fiber.Ctx, err error) error {
	errorMessages := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{
			"kind":    apperrors.KindInvalidInput,
			"message": "Validation failed",
			"fields":  errorMessages,
		},
	})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{"kind": apperrors.KindInvalidInput, "message": "Invalid request body: " + err.Error()},
	})
}

func principal(c *fiber.Ctx) (services.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return services.Principal{}, apperrors.New(apperrors.KindUnauthorized, "authentication required")
	}
	return p, nil
}
