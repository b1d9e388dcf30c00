package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/models"
)

// HistoryQuery asks for one page of the conversation between ViewerID and
// CounterpartID. Page is clamped to [1, MaxPage] and Limit to [1, 50]. Snapshot is the
// value returned by an earlier page; zero starts a new snapshot.
type HistoryQuery struct {
	ViewerID      uuid.UUID
	CounterpartID uuid.UUID
	Page          int
	Limit         int
	Snapshot      int64
}

type HistoryPage struct {
	Messages         []models.Message `json:"messages"`
	Total            int64            `json:"total"`
	Page             int              `json:"page"`
	Limit            int              `json:"limit"`
	TotalPages       int              `json:"total_pages"`
	Snapshot         int64            `json:"snapshot"`
	CanSendMessages  bool             `json:"can_send_messages"`
	HasAcceptedChat  bool             `json:"has_accepted_chat"`
	IsBlockedByOther bool             `json:"is_blocked_by_other"`
}

type HistoryService struct {
	engine *Engine
	store  Store
}

func NewHistoryService(engine *Engine, store Store) *HistoryService {
	return &HistoryService{engine: engine, store: store}
}

// History returns messages newest first along with the viewer's current
// access flags toward the counterpart.
func (s *HistoryService) History(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	_, access, err := s.engine.Resolve(ctx, q.ViewerID, q.CounterpartID)
	if err != nil {
		return nil, err
	}
	if !access.CanView {
		return nil, ErrNoConversationAccess
	}

	page := ClampPage(q.Page)
	limit := ClampLimit(q.Limit)
	snapshot := q.Snapshot
	if snapshot < 0 {
		snapshot = 0
	}

	msgs, total, snapshot, err := s.store.ListHistory(ctx, HistoryFilter{
		UserA:    q.ViewerID,
		UserB:    q.CounterpartID,
		Offset:   pageOffset(page, limit),
		Limit:    limit,
		Snapshot: snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	return &HistoryPage{
		Messages:         msgs,
		Total:            total,
		Page:             page,
		Limit:            limit,
		TotalPages:       totalPages(total, limit),
		Snapshot:         snapshot,
		CanSendMessages:  access.CanSend,
		HasAcceptedChat:  access.HasAcceptedChat,
		IsBlockedByOther: access.IsBlockedByOther,
	}, nil
}
