package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact is the directed "OwnerID has added ContactID as a contact" relation.
type Contact struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contacts_pair,priority:1" json:"owner_id"`
	ContactID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contacts_pair,priority:2;index" json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`
	Owner     User      `gorm:"foreignKey:OwnerID" json:"-"`
	Contact   User      `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

func (Contact) TableName() string {
	return "contacts"
}
