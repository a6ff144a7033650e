package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"fibexecutor/src/model"
	"fibexecutor/src/reporting"
	"fibexecutor/src/strategy"
)

type statusSource interface {
	Status() strategy.Status
}

type ledgerSource interface {
	ClosedPositions() []model.ClosedPosition
}

type positionLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]model.ClosedPositionRecord, error)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// StatusHandler returns the bot state, P&L, levels and inventories.
func StatusHandler(src statusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.Status())
	}
}

type positionsResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	Positions interface{}        `json:"positions"`
	Summary   *reporting.Summary `json:"summary,omitempty"`
}

// PositionsHandler returns the closed-position ledger of the running session.
// With ?sessionId= and a store, the persisted ledger of that session is
// returned instead.
func PositionsHandler(ledger ledgerSource, store positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		if sessionID == "" {
			closed := ledger.ClosedPositions()
			if closed == nil {
				closed = []model.ClosedPosition{}
			}
			summary := reporting.Summarize(closed)
			writeJSON(w, positionsResponse{Positions: closed, Summary: &summary})
			return
		}

		if store == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		rows, err := store.ListBySession(r.Context(), sessionID)
		if err != nil {
			logger.WithError(err).WithField("session_id", sessionID).Error("failed to list positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []model.ClosedPositionRecord{}
		}
		writeJSON(w, positionsResponse{SessionID: sessionID, Positions: rows})
	}
}
