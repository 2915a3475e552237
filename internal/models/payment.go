package models

import "time"

// PaymentRecordStatus is the ledger status of a payment attempt. It is kept
// apart from the order's PaymentStatus on purpose: the vocabularies differ.
type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordSucceeded PaymentRecordStatus = "succeeded"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
)

// Payment is the durable record of what the processor was asked to charge
// for an order and what it confirmed.
type Payment struct {
	ID              string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID         string              `json:"order_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	SessionID       string              `json:"session_id" gorm:"type:varchar(255);index"`
	PaymentIntentID string              `json:"payment_intent_id" gorm:"type:varchar(255)"`
	AmountMinor     int64               `json:"amount"` // smallest currency unit
	Currency        string              `json:"currency" gorm:"type:varchar(3);not null"`
	Status          PaymentRecordStatus `json:"status" gorm:"type:varchar(20);not null"`
	SucceededAt     *time.Time          `json:"succeeded_at,omitempty"`
	FailedAt        *time.Time          `json:"failed_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// AdvancesFrom lists the statuses a record may hold for s to be written over
// it. Terminal statuses are never overwritten by an earlier one.
func (s PaymentRecordStatus) AdvancesFrom() []PaymentRecordStatus {
	switch s {
	case PaymentRecordPending:
		return []PaymentRecordStatus{PaymentRecordPending}
	case PaymentRecordFailed:
		return []PaymentRecordStatus{PaymentRecordPending}
	case PaymentRecordSucceeded:
		return []PaymentRecordStatus{PaymentRecordPending, PaymentRecordFailed}
	}
	return nil
}

// CanAdvanceFrom reports whether s may be written over current.
func (s PaymentRecordStatus) CanAdvanceFrom(current PaymentRecordStatus) bool {
	for _, from := range s.AdvancesFrom() {
		if from == current {
			return true
		}
	}
	return false
}
