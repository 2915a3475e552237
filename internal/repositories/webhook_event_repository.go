package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEventRepository remembers processor events that were handled.
type WebhookEventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, event *models.WebhookEvent) error
}

type gormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGORMWebhookEventRepository creates a GORM-backed WebhookEventRepository.
func NewGORMWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &gormWebhookEventRepository{db: db}
}

func (r *gormWebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up webhook event %s: %w", eventID, err)
	}
	return count > 0, nil
}

// MarkProcessed keeps the first record for an event ID.
func (r *gormWebhookEventRepository) MarkProcessed(ctx context.Context, event *models.WebhookEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
	if err != nil {
		return fmt.Errorf("failed to record webhook event %s: %w", event.EventID, err)
	}
	return nil
}

// MockWebhookEventRepository is an in-memory WebhookEventRepository.
type MockWebhookEventRepository struct {
	events map[string]models.WebhookEvent
	mu     sync.RWMutex
}

// NewMockWebhookEventRepository creates a new instance of MockWebhookEventRepository.
func NewMockWebhookEventRepository() *MockWebhookEventRepository {
	return &MockWebhookEventRepository{events: make(map[string]models.WebhookEvent)}
}

func (r *MockWebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.events[eventID]
	return ok, nil
}

func (r *MockWebhookEventRepository) MarkProcessed(ctx context.Context, event *models.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.EventID]; ok {
		return nil
	}
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	r.events[event.EventID] = *event
	return nil
}

// Get returns a recorded event, for inspection.
func (r *MockWebhookEventRepository) Get(eventID string) (models.WebhookEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[eventID]
	return event, ok
}
