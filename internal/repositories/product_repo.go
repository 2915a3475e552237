package repositories

import (
	"context"

	"storefront/internal/models"
)

// ProductRepository defines the interface for catalog reads. Catalog writes
// belong to a separate admin service; Create exists for seeding.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
}
