package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatAcceptance records that UserID took up the chat FromUserID started. It
// gives UserID send rights toward FromUserID without a contact entry; the
// reverse direction is unaffected.
type ChatAcceptance struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chat_acceptances_pair,priority:1" json:"user_id"`
	FromUserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chat_acceptances_pair,priority:2;index" json:"from_user_id"`
	CreatedAt  time.Time `json:"created_at"`
	User       User      `gorm:"foreignKey:UserID" json:"-"`
	FromUser   User      `gorm:"foreignKey:FromUserID" json:"-"`
}

func (ChatAcceptance) TableName() string {
	return "chat_acceptances"
}
