package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetcare/fleet-backend/internal/models"
)

var (
	ErrSelfContact     = errors.New("cannot add yourself as a contact")
	ErrContactNotFound = errors.New("contact not found")
)

// ContactService manages the directed contact list that feeds the messaging
// access rules. Adding a contact is one-sided and never touches blocks.
type ContactService struct {
	db *gorm.DB
}

func NewContactService(db *gorm.DB) *ContactService {
	return &ContactService{db: db}
}

// AddContact is idempotent.
func (s *ContactService) AddContact(ownerID, contactID uuid.UUID) error {
	if ownerID == contactID {
		return ErrSelfContact
	}

	var target models.User
	if err := s.db.Select("id", "is_active").First(&target, "id = ?", contactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !target.IsActive {
		return ErrUserNotFound
	}

	contact := models.Contact{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		ContactID: contactID,
	}
	if err := s.db.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&contact).Error; err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}
	return nil
}

func (s *ContactService) RemoveContact(ownerID, contactID uuid.UUID) error {
	result := s.db.Where("owner_id = ? AND contact_id = ?", ownerID, contactID).Delete(&models.Contact{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (s *ContactService) ListContacts(ownerID uuid.UUID, limit, offset int) ([]models.Contact, int64, error) {
	var contacts []models.Contact
	var total int64

	query := s.db.Model(&models.Contact{}).Where("owner_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Preload("Contact").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&contacts).Error; err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}
