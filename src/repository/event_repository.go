package repository

import (
	"context"
	"encoding/json"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fibexecutor/src/database"
	"fibexecutor/src/model"
)

// DefaultOutboxMaxLen bounds the notification outbox.
const DefaultOutboxMaxLen = 1000

// EventRepository is the notification outbox: events are appended by the
// trading loop and drained by the notification worker.
type EventRepository struct {
	db     *gorm.DB
	maxLen int
}

func NewEventRepository() *EventRepository {
	return &EventRepository{db: database.MainDB, maxLen: DefaultOutboxMaxLen}
}

func (r *EventRepository) WithDB(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db, maxLen: r.maxLen}
}

// WithMaxLen overrides how many rows the outbox keeps.
func (r *EventRepository) WithMaxLen(n int) *EventRepository {
	return &EventRepository{db: r.db, maxLen: n}
}

// Append stores payload as JSON and trims the outbox to the newest rows.
func (r *EventRepository) Append(ctx context.Context, kind string, payload interface{}) (*model.NotificationEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", kind, err)
	}

	ev := &model.NotificationEvent{Kind: kind, Payload: string(body)}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "EventRepository",
			"op":   "Append",
			"kind": kind,
		}).WithError(err).Error("Failed to append notification event")
		return nil, err
	}

	if r.maxLen > 0 {
		keep := r.db.Model(&model.NotificationEvent{}).Select("id").Order("id DESC").Limit(r.maxLen)
		if err := r.db.WithContext(ctx).Where("id NOT IN (?)", keep).Delete(&model.NotificationEvent{}).Error; err != nil {
			logger.WithError(err).Warn("Failed to trim notification outbox")
		}
	}
	return ev, nil
}

// Fetch returns up to limit events, oldest first.
func (r *EventRepository) Fetch(ctx context.Context, limit int) ([]model.NotificationEvent, error) {
	var rows []model.NotificationEvent
	q := r.db.WithContext(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EventRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.NotificationEvent{}, id).Error
}

// MarkAttempt counts a failed delivery.
func (r *EventRepository) MarkAttempt(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&model.NotificationEvent{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}
