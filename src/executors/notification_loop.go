package executors

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"fibexecutor/src/connectors"
	"fibexecutor/src/model"
)

type outbox interface {
	Fetch(ctx context.Context, limit int) ([]model.NotificationEvent, error)
	Delete(ctx context.Context, id uint) error
	MarkAttempt(ctx context.Context, id uint) error
}

// Notifier posts a single outbox event to an external channel.
type Notifier interface {
	Notify(ctx context.Context, kind string, payload []byte) error
}

type NotificationLoop struct {
	store   outbox
	primary Notifier
	mirrors []Notifier
	batch   int
	pause   time.Duration
	log     *logrus.Entry
}

// NewNotificationLoop drains store through primary. Mirrors receive a copy of
// every event the primary accepted; their failures are only logged.
func NewNotificationLoop(store outbox, primary Notifier, cfg Config, log *logrus.Entry, mirrors ...Notifier) *NotificationLoop {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	batch := cfg.NotifyBatch
	if batch <= 0 {
		batch = 10
	}
	var ms []Notifier
	for _, m := range mirrors {
		if m != nil {
			ms = append(ms, m)
		}
	}
	return &NotificationLoop{
		store:   store,
		primary: primary,
		mirrors: ms,
		batch:   batch,
		pause:   cfg.NotifyPause,
		log:     log.WithField("component", "notifier"),
	}
}

// DeliverOnce posts up to one batch of events oldest first and returns how
// many were delivered.
func (l *NotificationLoop) DeliverOnce(ctx context.Context) (int, error) {
	rows, err := l.store.Fetch(ctx, l.batch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i, row := range rows {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if i > 0 && l.pause > 0 {
			select {
			case <-ctx.Done():
				return delivered, ctx.Err()
			case <-time.After(l.pause):
			}
		}

		log := l.log.WithFields(logrus.Fields{"event_id": row.ID, "kind": row.Kind})
		payload := []byte(row.Payload)

		err := l.primary.Notify(ctx, row.Kind, payload)
		switch {
		case err == nil:
			if derr := l.store.Delete(ctx, row.ID); derr != nil {
				log.WithError(derr).Error("failed to delete delivered event")
				continue
			}
			delivered++
			for _, m := range l.mirrors {
				if merr := m.Notify(ctx, row.Kind, payload); merr != nil {
					log.WithError(merr).Warn("mirror notification failed")
				}
			}
		case errors.Is(err, connectors.ErrUnknownEventKind):
			log.Warn("dropping event of unknown kind")
			if derr := l.store.Delete(ctx, row.ID); derr != nil {
				log.WithError(derr).Error("failed to delete event")
			}
		default:
			log.WithError(err).Warn("notification failed, will retry")
			if merr := l.store.MarkAttempt(ctx, row.ID); merr != nil {
				log.WithError(merr).Error("failed to record attempt")
			}
		}
	}
	return delivered, nil
}

// Run polls the outbox every period until ctx is done.
func (l *NotificationLoop) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	l.log.WithField("period", period).Info("notification loop started")
	for {
		if _, err := l.DeliverOnce(ctx); err != nil && ctx.Err() == nil {
			l.log.WithError(err).Error("failed to drain outbox")
		}
		select {
		case <-ctx.Done():
			l.log.Info("notification loop stopped")
			return
		case <-ticker.C:
		}
	}
}
