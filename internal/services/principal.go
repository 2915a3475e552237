package services

import (
	"storefront/internal/apperrors"
	"storefront/internal/models"
)

// Principal is the authenticated caller of a service operation.
type Principal struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

func (p Principal) canAccess(order *models.Order) error {
	if p.IsAdmin() || order.UserID == p.UserID {
		return nil
	}
	return apperrors.New(apperrors.KindForbidden, "order %s belongs to another user", order.ID)
}
