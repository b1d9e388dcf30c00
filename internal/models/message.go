package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable direct message. Seq is the insertion sequence and
// breaks ties between messages sent within the same clock tick.
type Message struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Seq         int64     `gorm:"autoIncrement;uniqueIndex;not null" json:"seq"`
	SenderID    uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_sender_recipient,priority:1" json:"sender_id"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_sender_recipient,priority:2;index" json:"recipient_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	SentAt      time.Time `gorm:"not null;index" json:"sent_at"`
}

func (Message) TableName() string {
	return "messages"
}

// CounterpartOf returns the other participant of the message as seen by userID.
func (m *Message) CounterpartOf(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}
