package repository

import (
	"context"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fibexecutor/src/database"
	"fibexecutor/src/model"
)

// PositionRepository stores the closed-position ledger.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create appends a closed position. Ledger rows are never updated.
func (r *PositionRepository) Create(ctx context.Context, rec *model.ClosedPositionRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "Create",
			"session_id": rec.SessionID,
		}).WithError(err).Error("Failed to persist closed position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "PositionRepository",
		"op":      "Create",
		"id":      rec.ID,
		"outcome": rec.Outcome,
		"net":     rec.Net.String(),
	}).Debug("Closed position persisted")
	return nil
}

// ListBySession returns the ledger in closing order.
func (r *PositionRepository) ListBySession(ctx context.Context, sessionID string) ([]model.ClosedPositionRecord, error) {
	var rows []model.ClosedPositionRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("exit_time ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PositionRepository) Summary(ctx context.Context, sessionID string) (model.PositionSummary, error) {
	rows, err := r.ListBySession(ctx, sessionID)
	if err != nil {
		return model.PositionSummary{}, err
	}

	summary := model.PositionSummary{TotalNet: decimal.Zero}
	for _, row := range rows {
		switch row.Outcome {
		case model.OutcomeProfit:
			summary.Profits++
		case model.OutcomeLoss:
			summary.Losses++
		}
		summary.TotalNet = summary.TotalNet.Add(row.Net)
	}
	return summary, nil
}
