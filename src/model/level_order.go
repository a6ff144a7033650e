package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Local order lifecycle. The terminal owns the truth; these are what the
// bot last observed.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPlaced    = "PLACED"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// LevelOrder is the persisted state of one Fibonacci level of a session and
// the order currently working it.
type LevelOrder struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	SessionID  string  `gorm:"size:64;not null;uniqueIndex:ux_level_orders_session_ratio,priority:1" json:"session_id"`
	FibRatio   float64 `gorm:"not null;uniqueIndex:ux_level_orders_session_ratio,priority:2" json:"fib_ratio"`
	Instrument string  `gorm:"size:50;not null" json:"instrument"`
	Side       string  `gorm:"size:10" json:"side"`

	LevelPrice           decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"level_price"`
	TakeProfit           decimal.Decimal `gorm:"type:numeric(20,8)" json:"take_profit"`
	StopLoss             decimal.Decimal `gorm:"type:numeric(20,8)" json:"stop_loss"`
	PointA               decimal.Decimal `gorm:"type:numeric(20,8)" json:"point_a"`
	PointB               decimal.Decimal `gorm:"type:numeric(20,8)" json:"point_b"`
	ReactivationDistance decimal.Decimal `gorm:"type:numeric(20,8)" json:"reactivation_distance"`

	Active  bool   `gorm:"not null;default:false" json:"active"`
	OrderID string `gorm:"size:200;index" json:"order_id"`
	Status  string `gorm:"size:20;not null;default:PENDING" json:"status"`
	Filled  int    `json:"filled"`

	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (LevelOrder) TableName() string {
	return "level_orders"
}
