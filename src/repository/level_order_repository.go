package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fibexecutor/src/database"
	"fibexecutor/src/model"
)

// LevelOrderRepository persists the per-level order state of a session.
type LevelOrderRepository struct {
	db *gorm.DB
}

// NewLevelOrderRepository creates a new repository instance using the main database.
func NewLevelOrderRepository() *LevelOrderRepository {
	return &LevelOrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *LevelOrderRepository) WithDB(db *gorm.DB) *LevelOrderRepository {
	return &LevelOrderRepository{db: db}
}

// Upsert inserts the row or updates the existing one for the same
// (session_id, fib_ratio) pair.
func (r *LevelOrderRepository) Upsert(ctx context.Context, row *model.LevelOrder) error {
	logger.WithFields(map[string]interface{}{
		"repo":       "LevelOrderRepository",
		"op":         "Upsert",
		"session_id": row.SessionID,
		"fib_ratio":  row.FibRatio,
		"order_id":   row.OrderID,
	}).Debug("Upserting level order")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "fib_ratio"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"instrument", "side", "level_price", "take_profit", "stop_loss",
				"point_a", "point_b", "reactivation_distance", "active",
				"order_id", "status", "filled", "generated_at", "updated_at",
			}),
		}).
		Create(row).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LevelOrderRepository",
			"op":   "Upsert",
		}).WithError(err).Error("Failed to upsert level order")
		return err
	}
	return nil
}

// ListBySession returns every level of a session ordered by ratio.
func (r *LevelOrderRepository) ListBySession(ctx context.Context, sessionID string) ([]model.LevelOrder, error) {
	var rows []model.LevelOrder
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("fib_ratio ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListWorking returns the rows whose order was sent and not yet resolved.
func (r *LevelOrderRepository) ListWorking(ctx context.Context, sessionID string) ([]model.LevelOrder, error) {
	var rows []model.LevelOrder
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ? AND order_id <> ''", sessionID, model.OrderStatusPlaced).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LevelOrderRepository) SetActive(ctx context.Context, sessionID string, ratio float64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&model.LevelOrder{}).
		Where("session_id = ? AND fib_ratio = ?", sessionID, ratio).
		Update("active", active).Error
}

// UpdateStatus records the last observed terminal state of an order.
// It returns the number of rows touched.
func (r *LevelOrderRepository) UpdateStatus(ctx context.Context, orderID string, status string, filled int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.LevelOrder{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{"status": status, "filled": filled})
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "LevelOrderRepository",
			"op":       "UpdateStatus",
			"order_id": orderID,
		}).WithError(res.Error).Error("Failed to update level order status")
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
