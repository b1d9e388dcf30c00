package dto

import (
	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/models"
)

// CreateReportRequest files a report against a user or a message.
type CreateReportRequest struct {
	ContentType string    `json:"content_type"`
	ContentID   uuid.UUID `json:"content_id"`
	Reason      string    `json:"reason"`
}

type ActionReportRequest struct {
	Status    string `json:"status"`
	AdminNote string `json:"admin_note"`
}

type ReportListResponse struct {
	Reports []models.Report `json:"reports"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}
