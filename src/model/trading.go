package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionLong  = "LONG"
	PositionShort = "SHORT"

	OutcomeProfit = "PROFIT"
	OutcomeLoss   = "LOSS"
)

// Tick is one observation of the last traded price.
type Tick struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// PendingOrder is an order generated at a level and not yet touched by the
// tick stream.
type PendingOrder struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id,omitempty"`
	Instrument  string          `json:"instrument"`
	Side        string          `json:"side"`
	Price       decimal.Decimal `json:"price"`
	FibRatio    float64         `json:"fib_ratio"`
	TakeProfit  decimal.Decimal `json:"take_profit"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	GeneratedAt time.Time       `json:"generated_at"`
	SystemTime  time.Time       `json:"system_time"`
}

type OpenPosition struct {
	Instrument string          `json:"instrument"`
	FibRatio   float64         `json:"fib_ratio"`
	Side       string          `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	EntryTime  time.Time       `json:"entry_time"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	SystemTime time.Time       `json:"system_time"`
}

// ClosedPosition is immutable once appended to the ledger.
type ClosedPosition struct {
	Position   OpenPosition    `json:"position"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ExitTime   time.Time       `json:"exit_time"`
	Outcome    string          `json:"outcome"`
	Net        decimal.Decimal `json:"net"`
	SystemTime time.Time       `json:"system_time"`
}

// Kickoff announces the anchors and levels of a session.
type Kickoff struct {
	Instrument string            `json:"instrument"`
	PointA     decimal.Decimal   `json:"point_a"`
	PointB     decimal.Decimal   `json:"point_b"`
	Levels     map[string]string `json:"levels"`
}
