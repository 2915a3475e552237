package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperrors"
	"storefront/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

func itemsByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// Create inserts the order together with its line items.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves an order and its line items.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Items", itemsByPosition).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "order with ID %s not found", id)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// List retrieves a page of orders, newest first.
func (r *GORMOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	filter = filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Order
	if err := query.
		Preload("Items", itemsByPosition).
		Order("created_at DESC").
		Offset(filter.offset()).
		Limit(filter.Limit).
		Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// Update locks the order row, applies mutate and saves the result in one
// transaction.
func (r *GORMOrderRepository) Update(ctx context.Context, id string, mutate OrderMutator) (*models.Order, error) {
	var updated models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items", itemsByPosition).
			First(&updated, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.KindNotFound, "order with ID %s not found", id)
			}
			return fmt.Errorf("failed to load order %s for update: %w", id, err)
		}

		if err := mutate(&updated); err != nil {
			return err
		}
		updated.UpdatedAt = time.Now()

		if err := tx.Omit(clause.Associations).Save(&updated).Error; err != nil {
			return fmt.Errorf("failed to save order %s: %w", id, err)
		}
		for i := range updated.Items {
			if err := tx.Save(&updated.Items[i]).Error; err != nil {
				return fmt.Errorf("failed to save line item of order %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// TransitionPayment issues one conditional UPDATE guarded on the current
// payment status.
func (r *GORMOrderRepository) TransitionPayment(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, orderStatus models.OrderStatus) (*models.Order, bool, error) {
	updates := map[string]interface{}{
		"payment_status": string(to),
		"updated_at":     time.Now(),
	}
	if orderStatus != "" {
		updates["order_status"] = string(orderStatus)
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", id, paymentStatusStrings(from)).
		Updates(updates)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to transition payment status of order %s: %w", id, res.Error)
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return order, res.RowsAffected > 0, nil
}
