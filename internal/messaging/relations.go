package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/metrics"
)

// RelationService applies accept-chat and block decisions. Both operations
// are idempotent; a repeated call succeeds without writing.
type RelationService struct {
	engine *Engine
	store  Store
}

func NewRelationService(engine *Engine, store Store) *RelationService {
	return &RelationService{engine: engine, store: store}
}

// Accept records that accepterID takes up the chat fromUserID started, which
// lets accepterID reply to fromUserID without being a contact. It grants
// fromUserID nothing.
func (s *RelationService) Accept(ctx context.Context, accepterID, fromUserID uuid.UUID) error {
	return s.apply(ctx, "accept", accepterID, fromUserID, decideAccept)
}

// Block stops targetID from messaging blockerID and, in the same write,
// withdraws blockerID's own acceptance of the chat with targetID.
func (s *RelationService) Block(ctx context.Context, blockerID, targetID uuid.UUID) error {
	return s.apply(ctx, "block", blockerID, targetID, decideBlock)
}

func decideAccept(st RelationState) (RelationChange, error) {
	if st.Blocked {
		return RelationChange{}, ErrUnblockRequired
	}
	if st.Accepted {
		return RelationChange{}, nil
	}
	return RelationChange{AddAccepted: true}, nil
}

func decideBlock(st RelationState) (RelationChange, error) {
	// A stale acceptance is removed even when the block already exists.
	return RelationChange{
		AddBlocked:     !st.Blocked,
		RemoveAccepted: st.Accepted,
	}, nil
}

func (s *RelationService) apply(ctx context.Context, op string, actorID, targetID uuid.UUID, decide func(RelationState) (RelationChange, error)) error {
	if _, err := s.engine.LoadPair(ctx, actorID, targetID); err != nil {
		return err
	}

	change, err := s.store.UpdateRelations(ctx, actorID, targetID, decide)
	if err != nil {
		if KindOf(err) == KindConflict {
			metrics.RelationChanges.WithLabelValues(op, "rejected").Inc()
			return err
		}
		return fmt.Errorf("%s relation: %w", op, err)
	}

	outcome := "applied"
	if change.Empty() {
		outcome = "noop"
	}
	metrics.RelationChanges.WithLabelValues(op, outcome).Inc()
	slog.Info("chat relation updated",
		"action", op,
		"outcome", outcome,
		"user_id", actorID.String(),
		"counterpart_id", targetID.String(),
	)
	return nil
}
