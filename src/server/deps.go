package server

import (
	"context"

	"fibexecutor/src/model"
	"fibexecutor/src/strategy"
)

type botView interface {
	Status() strategy.Status
	ClosedPositions() []model.ClosedPosition
}

type positionLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]model.ClosedPositionRecord, error)
}
