package mapper

import (
	"strings"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fibexecutor/src/connectors"
	"fibexecutor/src/model"
)

// MapNTStatus converts a terminal order status into the local lifecycle.
// Unknown or empty statuses stay PENDING.
func MapNTStatus(status string) string {
	switch strings.TrimSpace(status) {
	case connectors.StatusFilled:
		return model.OrderStatusFilled
	case connectors.StatusWorking,
		connectors.StatusAccepted,
		connectors.StatusSubmitted,
		connectors.StatusTriggered,
		connectors.StatusPending,
		connectors.StatusPartiallyFilled,
		connectors.StatusAmended:
		return model.OrderStatusPlaced
	case connectors.StatusCancelled,
		connectors.StatusRejected,
		connectors.StatusExpired:
		return model.OrderStatusCancelled
	case "":
		return model.OrderStatusPending
	default:
		logger.WithField("status", status).Debug("unknown terminal order status, keeping pending")
		return model.OrderStatusPending
	}
}

// PendingToLevelOrder builds the level row written when a pending order is generated.
func PendingToLevelOrder(sessionID string, pending model.PendingOrder, distance, pointA, pointB decimal.Decimal) *model.LevelOrder {
	status := model.OrderStatusPending
	if pending.OrderID != "" {
		status = model.OrderStatusPlaced
	}
	return &model.LevelOrder{
		SessionID:            sessionID,
		FibRatio:             pending.FibRatio,
		Instrument:           pending.Instrument,
		Side:                 pending.Side,
		LevelPrice:           pending.Price,
		TakeProfit:           pending.TakeProfit,
		StopLoss:             pending.StopLoss,
		PointA:               pointA,
		PointB:               pointB,
		ReactivationDistance: distance,
		Active:               true,
		OrderID:              pending.OrderID,
		Status:               status,
		GeneratedAt:          pending.GeneratedAt,
	}
}

// ClosedToRecord flattens a closed position into a ledger row.
func ClosedToRecord(sessionID string, closed model.ClosedPosition, backtest bool) *model.ClosedPositionRecord {
	p := closed.Position
	return &model.ClosedPositionRecord{
		SessionID:  sessionID,
		Instrument: p.Instrument,
		FibRatio:   p.FibRatio,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		EntryTime:  p.EntryTime,
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
		ExitPrice:  closed.ExitPrice,
		ExitTime:   closed.ExitTime,
		Outcome:    closed.Outcome,
		Net:        closed.Net,
		Backtest:   backtest,
	}
}

// RecordToClosed is the inverse of ClosedToRecord.
func RecordToClosed(rec model.ClosedPositionRecord) model.ClosedPosition {
	return model.ClosedPosition{
		Position: model.OpenPosition{
			Instrument: rec.Instrument,
			FibRatio:   rec.FibRatio,
			Side:       rec.Side,
			EntryPrice: rec.EntryPrice,
			EntryTime:  rec.EntryTime,
			TakeProfit: rec.TakeProfit,
			StopLoss:   rec.StopLoss,
		},
		ExitPrice:  rec.ExitPrice,
		ExitTime:   rec.ExitTime,
		Outcome:    rec.Outcome,
		Net:        rec.Net,
		SystemTime: rec.CreatedAt,
	}
}
