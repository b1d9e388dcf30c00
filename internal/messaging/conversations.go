package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConversationQuery struct {
	UserID       uuid.UUID
	Page         int
	Limit        int
	OnlyContacts bool
	Search       string
}

type Counterpart struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

type LastMessage struct {
	ID       uuid.UUID `json:"id"`
	SenderID uuid.UUID `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
}

// ConversationSummary is one inbox row. The flags reflect current access,
// not only the message history.
type ConversationSummary struct {
	Counterpart      Counterpart `json:"counterpart"`
	LastMessage      LastMessage `json:"last_message"`
	CanSend          bool        `json:"can_send"`
	IsBlockedByOther bool        `json:"is_blocked_by_other"`
	HasAcceptedChat  bool        `json:"has_accepted_chat"`
}

type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int64                 `json:"total"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	TotalPages    int                   `json:"total_pages"`
}

type ConversationService struct {
	engine *Engine
	store  Store
}

func NewConversationService(engine *Engine, store Store) *ConversationService {
	return &ConversationService{engine: engine, store: store}
}

// List returns the user's inbox: one row per counterparty, most recent first.
func (s *ConversationService) List(ctx context.Context, q ConversationQuery) (*ConversationPage, error) {
	if q.UserID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if _, err := s.engine.activeUser(ctx, q.UserID); err != nil {
		return nil, err
	}

	page := ClampPage(q.Page)
	limit := ClampLimit(q.Limit)

	rows, total, err := s.store.ListConversations(ctx, ConversationFilter{
		UserID:       q.UserID,
		Offset:       pageOffset(page, limit),
		Limit:        limit,
		OnlyContacts: q.OnlyContacts,
		Search:       strings.TrimSpace(q.Search),
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	result := &ConversationPage{
		Conversations: make([]ConversationSummary, 0, len(rows)),
		Total:         total,
		Page:          page,
		Limit:         limit,
		TotalPages:    totalPages(total, limit),
	}
	if len(rows) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.Counterpart.ID
	}
	facts, err := s.store.LoadFactsBatch(ctx, q.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("load relationship facts: %w", err)
	}

	for _, row := range rows {
		access := Resolve(facts[row.Counterpart.ID])
		result.Conversations = append(result.Conversations, ConversationSummary{
			Counterpart: Counterpart{
				ID:          row.Counterpart.ID,
				DisplayName: row.Counterpart.DisplayName,
				Role:        row.Counterpart.Role,
			},
			LastMessage: LastMessage{
				ID:       row.LastMessage.ID,
				SenderID: row.LastMessage.SenderID,
				Content:  row.LastMessage.Content,
				SentAt:   row.LastMessage.SentAt,
			},
			CanSend:          access.CanSend,
			IsBlockedByOther: access.IsBlockedByOther,
			HasAcceptedChat:  access.HasAcceptedChat,
		})
	}
	return result, nil
}
