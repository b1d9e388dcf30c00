package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fleetcare/fleet-backend/internal/dto"
	"github.com/fleetcare/fleet-backend/internal/models"
)

var (
	ErrReportNotFound     = errors.New("report not found")
	ErrReportTargetAbsent = errors.New("reported content not found")
)

// ModerationService handles abuse reports filed against users and messages.
type ModerationService struct {
	db *gorm.DB
}

func NewModerationService(db *gorm.DB) *ModerationService {
	return &ModerationService{db: db}
}

func (s *ModerationService) CreateReport(reporterID uuid.UUID, req *dto.CreateReportRequest) (*models.Report, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, errors.New("reason is required")
	}
	targetID := req.ContentID
	if targetID == uuid.Nil {
		return nil, errors.New("content_id is required")
	}

	switch req.ContentType {
	case models.ReportTargetUser:
		if err := s.exists(&models.User{}, "id = ?", targetID); err != nil {
			return nil, err
		}
	case models.ReportTargetMessage:
		// Only a participant may report a message.
		if err := s.exists(&models.Message{}, "id = ? AND (sender_id = ? OR recipient_id = ?)", targetID, reporterID, reporterID); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("invalid content_type: must be user or message")
	}

	report := models.Report{
		ID:          uuid.New(),
		ReporterID:  reporterID,
		ContentType: req.ContentType,
		ContentID:   targetID.String(),
		Reason:      strings.TrimSpace(req.Reason),
		Status:      models.ReportPending,
	}

	if err := s.db.Omit("Reporter").Create(&report).Error; err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return &report, nil
}

func (s *ModerationService) ListReports(status string, limit, offset int) ([]models.Report, int64, error) {
	var reports []models.Report
	var total int64

	query := s.db.Model(&models.Report{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func (s *ModerationService) ActionReport(reportID uuid.UUID, req *dto.ActionReportRequest) error {
	if !models.ReportResolutions[req.Status] {
		return errors.New("invalid status: must be reviewed, actioned, or dismissed")
	}

	result := s.db.Model(&models.Report{}).
		Where("id = ?", reportID).
		Updates(map[string]interface{}{
			"status":     req.Status,
			"admin_note": req.AdminNote,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (s *ModerationService) exists(model interface{}, query string, args ...interface{}) error {
	var n int64
	if err := s.db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrReportTargetAbsent
	}
	return nil
}
