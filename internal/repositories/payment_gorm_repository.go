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

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{
		db: db,
	}
}

// FindByOrderID retrieves the payment record of an order.
func (r *GORMPaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "payment for order %s not found", orderID)
		}
		return nil, fmt.Errorf("failed to get payment for order %s: %w", orderID, err)
	}
	return &payment, nil
}

// Upsert inserts with ON CONFLICT DO NOTHING and falls back to an UPDATE
// guarded on the stored status, so two concurrent writers cannot move the
// record backwards.
func (r *GORMPaymentRepository) Upsert(ctx context.Context, record *models.Payment) (*models.Payment, bool, error) {
	now := time.Now()
	candidate := *record
	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	stampOutcome(&candidate, now)

	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(&candidate)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to insert payment for order %s: %w", record.OrderID, res.Error)
	}
	if res.RowsAffected == 1 {
		return &candidate, true, nil
	}

	updates := map[string]interface{}{
		"status":       string(candidate.Status),
		"amount_minor": candidate.AmountMinor,
		"currency":     candidate.Currency,
		"updated_at":   now,
	}
	if candidate.SessionID != "" {
		updates["session_id"] = candidate.SessionID
	}
	if candidate.PaymentIntentID != "" {
		updates["payment_intent_id"] = candidate.PaymentIntentID
	}
	if candidate.SucceededAt != nil {
		updates["succeeded_at"] = candidate.SucceededAt
	}
	if candidate.FailedAt != nil {
		updates["failed_at"] = candidate.FailedAt
	}

	res = db.Model(&models.Payment{}).
		Where("order_id = ? AND status IN ?", record.OrderID, paymentRecordStatusStrings(candidate.Status.AdvancesFrom())).
		Updates(updates)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to update payment for order %s: %w", record.OrderID, res.Error)
	}

	stored, err := r.FindByOrderID(ctx, record.OrderID)
	if err != nil {
		return nil, false, err
	}
	return stored, res.RowsAffected > 0, nil
}
