package model

import "time"

// Event kinds carried by the outbox and the event stream.
const (
	EventPendingOrder  = "PENDING_ORDER"
	EventPositionClose = "POSITION_CLOSE"
	EventKickoff       = "KICKOFF"
)

// NotificationEvent is an outbox row waiting to be delivered to the chat
// adapters. Rows are removed once delivered.
type NotificationEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"size:30;not null;index" json:"kind"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (NotificationEvent) TableName() string {
	return "notification_events"
}
