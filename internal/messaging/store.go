package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/models"
)

// RelationState is the actor's outgoing accept/block relations toward a target.
type RelationState struct {
	Accepted bool
	Blocked  bool
}

// RelationChange is the write applied by Store.UpdateRelations.
type RelationChange struct {
	AddAccepted    bool
	RemoveAccepted bool
	AddBlocked     bool
}

// Empty reports whether the change writes nothing.
func (c RelationChange) Empty() bool {
	return !c.AddAccepted && !c.RemoveAccepted && !c.AddBlocked
}

// HistoryFilter selects one page of messages between two users.
// Snapshot, when positive, hides messages with a higher Seq.
type HistoryFilter struct {
	UserA    uuid.UUID
	UserB    uuid.UUID
	Offset   int
	Limit    int
	Snapshot int64
}

// ConversationFilter selects one page of a user's inbox.
type ConversationFilter struct {
	UserID       uuid.UUID
	Offset       int
	Limit        int
	OnlyContacts bool
	Search       string
}

// ConversationRow is the latest message exchanged with one counterparty.
type ConversationRow struct {
	Counterpart models.User
	LastMessage models.Message
}

// Store is the persistence the messaging core runs on. Implementations must
// make AppendMessage and UpdateRelations atomic and serialized per user row.
type Store interface {
	// FindUser returns ErrUserNotFound when the user does not exist.
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	LoadFacts(ctx context.Context, viewerID, otherID uuid.UUID) (Facts, error)
	LoadFactsBatch(ctx context.Context, viewerID uuid.UUID, otherIDs []uuid.UUID) (map[uuid.UUID]Facts, error)

	// AppendMessage loads the sender->recipient facts while holding a shared
	// lock on the recipient, calls authorize, and inserts msg only if authorize
	// returns nil. SentAt and Seq are assigned by the store.
	AppendMessage(ctx context.Context, msg *models.Message, authorize func(Facts) error) error

	// UpdateRelations reads the actor->target state under an exclusive lock on
	// the actor, asks decide for the change and applies it in the same
	// transaction. The applied change is returned.
	UpdateRelations(ctx context.Context, actorID, targetID uuid.UUID, decide func(RelationState) (RelationChange, error)) (RelationChange, error)

	// ListHistory returns the page newest first, the total within the
	// snapshot and the snapshot used.
	ListHistory(ctx context.Context, f HistoryFilter) ([]models.Message, int64, int64, error)

	ListConversations(ctx context.Context, f ConversationFilter) ([]ConversationRow, int64, error)
}

// Notifier delivers a best-effort "new message" notification.
type Notifier interface {
	MessageSent(ctx context.Context, msg *models.Message, sender *models.User) error
}
