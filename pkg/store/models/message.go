package models

import "time"

// Message is a best-effort history record of a client MSG payload. The
// notification core never relays these; persistence exists for operator
// inspection only and failures are logged, not surfaced.
type Message struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	From   string    `gorm:"column:from_identity;index;not null;size:255" json:"from"`
	To     string    `gorm:"column:to_identity;size:255" json:"to"`
	Body   string    `gorm:"not null" json:"body"`
	SentAt time.Time `gorm:"index" json:"sent_at"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "message_history"
}
