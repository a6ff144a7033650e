package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosedPositionRecord is one row of the closed-position ledger.
type ClosedPositionRecord struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	SessionID  string          `gorm:"size:64;not null;index" json:"session_id"`
	Instrument string          `gorm:"size:50;not null" json:"instrument"`
	FibRatio   float64         `json:"fib_ratio"`
	Side       string          `gorm:"size:10;not null" json:"side"`
	EntryPrice decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	TakeProfit decimal.Decimal `gorm:"type:numeric(20,8)" json:"take_profit"`
	StopLoss   decimal.Decimal `gorm:"type:numeric(20,8)" json:"stop_loss"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"exit_price"`
	ExitTime   time.Time       `json:"exit_time"`
	Outcome    string          `gorm:"size:10;not null;index" json:"outcome"`
	Net        decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"net"`
	Backtest   bool            `gorm:"not null;default:false" json:"backtest"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (ClosedPositionRecord) TableName() string {
	return "closed_positions"
}

// PositionSummary aggregates the ledger of one session.
type PositionSummary struct {
	Profits  int64           `json:"profits"`
	Losses   int64           `json:"losses"`
	TotalNet decimal.Decimal `json:"total_net"`
}
