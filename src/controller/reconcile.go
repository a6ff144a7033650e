package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fibexecutor/src/connectors"
	"fibexecutor/src/mapper"
	"fibexecutor/src/model"
)

type statusClient interface {
	OrderStatus(orderID string) string
	Filled(orderID string) int
}

type levelOrderStore interface {
	ListWorking(ctx context.Context, sessionID string) ([]model.LevelOrder, error)
	UpdateStatus(ctx context.Context, orderID string, status string, filled int) (int64, error)
	SetActive(ctx context.Context, sessionID string, ratio float64, active bool) error
}

// Reconciler reads back the terminal state of the orders the bot placed and
// records it on the level rows. It runs beside the tick loop, never in it.
type Reconciler struct {
	sessionID  string
	client     statusClient
	store      levelOrderStore
	exceptions exceptionRepository
	log        *logrus.Entry
}

func NewReconciler(sessionID string, client statusClient, store levelOrderStore, exceptions exceptionRepository, log *logrus.Entry) *Reconciler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{
		sessionID:  sessionID,
		client:     client,
		store:      store,
		exceptions: exceptions,
		log:        log.WithField("component", "reconciler"),
	}
}

// Once reconciles every working order and returns how many rows changed.
func (r *Reconciler) Once(ctx context.Context) (int, error) {
	rows, err := r.store.ListWorking(ctx, r.sessionID)
	if err != nil {
		return 0, fmt.Errorf("list working level orders: %w", err)
	}

	updated := 0
	for _, row := range rows {
		raw := r.client.OrderStatus(row.OrderID)
		status := mapper.MapNTStatus(raw)
		if status == model.OrderStatusPending {
			// terminal has not reported on this id yet
			continue
		}
		filled := r.client.Filled(row.OrderID)
		if status == row.Status && filled == row.Filled {
			continue
		}

		if _, err := r.store.UpdateStatus(ctx, row.OrderID, status, filled); err != nil {
			Capture(ctx, r.exceptions, "fibexecutor", "controller", "Reconciler.Once", "error", err,
				map[string]interface{}{"order_id": row.OrderID, "status": raw})
			continue
		}
		// a cancelled order leaves its level armed; the bot re-places it on the next window entry
		if status == model.OrderStatusFilled {
			if err := r.store.SetActive(ctx, r.sessionID, row.FibRatio, false); err != nil {
				Capture(ctx, r.exceptions, "fibexecutor", "controller", "Reconciler.Once", "error", err,
					map[string]interface{}{"order_id": row.OrderID, "fib_ratio": row.FibRatio})
			}
		}

		updated++
		r.log.WithFields(logrus.Fields{
			"order_id":  row.OrderID,
			"fib_ratio": row.FibRatio,
			"status":    status,
			"filled":    filled,
		}).Info(connectors.DescribeStatus(raw))
	}
	return updated, nil
}

// Run reconciles every period until ctx is done. Failures are captured,
// never returned.
func (r *Reconciler) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Debug("reconciler stopped")
			return
		case <-ticker.C:
			if _, err := r.Once(ctx); err != nil {
				Capture(ctx, r.exceptions, "fibexecutor", "controller", "Reconciler.Run", "warn", err, nil)
			}
		}
	}
}
