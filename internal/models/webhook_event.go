package models

import "time"

const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
)

// WebhookEvent records each verified processor event so that replays can be
// recognised and every delivery leaves a trace.
type WebhookEvent struct {
	EventID     string    `gorm:"primaryKey;type:varchar(255)"`
	EventType   string    `gorm:"type:varchar(100);not null"`
	OrderID     string    `gorm:"type:varchar(36);index"`
	Outcome     string    `gorm:"type:varchar(20);not null"`
	ProcessedAt time.Time `gorm:"not null"`
}
