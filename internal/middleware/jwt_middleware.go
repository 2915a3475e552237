package middleware

import (
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const principalKey = "principal"

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(authService *services.AuthService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return reject(c, apperrors.KindUnauthorized, "Authorization header is required")
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return reject(c, apperrors.KindUnauthorized, "Authorization header format must be 'Bearer <token>'")
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug("JWT validation failed", zap.String("path", c.Path()), zap.Error(err))
			return reject(c, apperrors.KindUnauthorized, "Invalid or expired token")
		}

		principal, err := services.PrincipalFromClaims(claims)
		if err != nil {
			return reject(c, apperrors.KindUnauthorized, "Invalid or expired token")
		}

		c.Locals(principalKey, principal)
		c.Locals("user_id", principal.UserID)
		c.Locals("username", claims["username"])
		return c.Next()
	}
}

// AdminOnly lets through callers whose token carries the admin role. It must
// run after AuthRequired.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFrom(c)
		if !ok {
			return reject(c, apperrors.KindUnauthorized, "authentication required")
		}
		if !principal.IsAdmin() {
			return reject(c, apperrors.KindForbidden, "admin role required")
		}
		return c.Next()
	}
}

// PrincipalFrom returns the caller stored by AuthRequired.
func PrincipalFrom(c *fiber.Ctx) (services.Principal, bool) {
	principal, ok := c.Locals(principalKey).(services.Principal)
	return principal, ok
}

func reject(c *fiber.Ctx, kind apperrors.Kind, message string) error {
	return c.Status(apperrors.StatusFor(kind)).JSON(fiber.Map{
		"error": fiber.Map{"kind": kind, "message": message},
	})
}
