package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/mapper"
	"fibexecutor/src/model"
)

// Event is emitted by the bot for the notification and persistence adapters.
// Exactly one of the snapshots is set, matching Kind.
type Event struct {
	Kind      string                `json:"kind"`
	SessionID string                `json:"session_id"`
	Time      time.Time             `json:"time"`
	Backtest  bool                  `json:"backtest"`
	Pending   *model.PendingOrder   `json:"pending,omitempty"`
	Closed    *model.ClosedPosition `json:"closed,omitempty"`
	Kickoff   *model.Kickoff        `json:"kickoff,omitempty"`
}

// Payload returns the snapshot carried by the event.
func (e Event) Payload() interface{} {
	switch {
	case e.Pending != nil:
		return e.Pending
	case e.Closed != nil:
		return e.Closed
	case e.Kickoff != nil:
		return e.Kickoff
	default:
		return nil
	}
}

// EventSink receives bot events. Publish must not block the tick loop for
// long and must not fail it.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// MultiSink fans an event out to every sink in order.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []EventSink
}

func NewMultiSink(sinks ...EventSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

func (m *MultiSink) Add(s EventSink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

func (m *MultiSink) Publish(ctx context.Context, ev Event) {
	m.mu.RLock()
	sinks := append([]EventSink(nil), m.sinks...)
	m.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(ctx, ev)
	}
}

// LogSink writes events to the log.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(log *logrus.Entry) *LogSink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogSink{log: log.WithField("component", "events")}
}

func (s *LogSink) Publish(_ context.Context, ev Event) {
	entry := s.log.WithFields(logrus.Fields{"kind": ev.Kind, "session_id": ev.SessionID})
	switch {
	case ev.Pending != nil:
		entry.WithFields(logrus.Fields{
			"side":      ev.Pending.Side,
			"price":     ev.Pending.Price.String(),
			"fib_ratio": ev.Pending.FibRatio,
		}).Info("pending order generated")
	case ev.Closed != nil:
		entry.WithFields(logrus.Fields{
			"outcome": ev.Closed.Outcome,
			"net":     ev.Closed.Net.String(),
			"exit":    ev.Closed.ExitPrice.String(),
		}).Info("position closed")
	case ev.Kickoff != nil:
		entry.WithFields(logrus.Fields{
			"point_a": ev.Kickoff.PointA.String(),
			"point_b": ev.Kickoff.PointB.String(),
		}).Info("levels computed")
	}
}

type outboxAppender interface {
	Append(ctx context.Context, kind string, payload interface{}) (*model.NotificationEvent, error)
}

// OutboxSink queues events for the notification worker. Backtest events are
// never queued.
type OutboxSink struct {
	repo    outboxAppender
	enabled bool
	log     *logrus.Entry
}

func NewOutboxSink(repo outboxAppender, enabled bool, log *logrus.Entry) *OutboxSink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if !enabled {
		log.Warn("notifications are disabled, events will not be queued")
	}
	return &OutboxSink{repo: repo, enabled: enabled, log: log.WithField("component", "outbox")}
}

func (s *OutboxSink) Publish(ctx context.Context, ev Event) {
	if !s.enabled || ev.Backtest {
		return
	}
	if _, err := s.repo.Append(ctx, ev.Kind, ev.Payload()); err != nil {
		s.log.WithError(err).WithField("kind", ev.Kind).Error("failed to queue notification")
	}
}

type levelUpserter interface {
	Upsert(ctx context.Context, row *model.LevelOrder) error
}

type positionCreator interface {
	Create(ctx context.Context, rec *model.ClosedPositionRecord) error
}

type anchorSource interface {
	Anchors() (pointA, pointB decimal.Decimal)
}

// LedgerSink persists generated levels and the closed-position ledger.
type LedgerSink struct {
	levels    levelUpserter
	positions positionCreator
	anchors   anchorSource
	distance  decimal.Decimal
	log       *logrus.Entry
}

func NewLedgerSink(levels levelUpserter, positions positionCreator, anchors anchorSource, distance decimal.Decimal, log *logrus.Entry) *LedgerSink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LedgerSink{
		levels:    levels,
		positions: positions,
		anchors:   anchors,
		distance:  distance,
		log:       log.WithField("component", "ledger"),
	}
}

func (s *LedgerSink) Publish(ctx context.Context, ev Event) {
	switch {
	case ev.Pending != nil && s.levels != nil:
		a, b := s.anchors.Anchors()
		row := mapper.PendingToLevelOrder(ev.SessionID, *ev.Pending, s.distance, a, b)
		if err := s.levels.Upsert(ctx, row); err != nil {
			s.log.WithError(err).Error("failed to persist level order")
		}
	case ev.Closed != nil && s.positions != nil:
		rec := mapper.ClosedToRecord(ev.SessionID, *ev.Closed, ev.Backtest)
		if err := s.positions.Create(ctx, rec); err != nil {
			s.log.WithError(err).Error("failed to persist closed position")
		}
	}
}
