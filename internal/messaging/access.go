package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/models"
)

// DenyReason is the caller-visible reason a send is refused. It never says
// which relation granted or withheld access, only whether the sender is blocked.
type DenyReason string

const (
	DenyNone         DenyReason = ""
	DenyBlocked      DenyReason = "blocked"
	DenyNotConnected DenyReason = "not_connected"
)

// Facts are the relationship facts between a viewer V and another user O.
// Every field is queried independently; none implies another.
type Facts struct {
	BlockedByOther          bool // Block(O->V)
	ViewerHasOtherAsContact bool // Contact(V->O)
	OtherHasViewerAsContact bool // Contact(O->V)
	ViewerAcceptedFromOther bool // ChatAcceptance(V->O)
	OtherAcceptedFromViewer bool // ChatAcceptance(O->V)
	HasHistory              bool // any message between V and O
}

// Access is the resolved access state of V toward O.
type Access struct {
	CanView          bool
	CanSend          bool
	IsBlockedByOther bool
	HasAcceptedChat  bool
	DenyReason       DenyReason
}

// Resolve applies the access rules:
// view = any contact, acceptance or history in either direction, block ignored;
// send = block(O->V) > contact(V->O) or acceptance(V->O).
func Resolve(f Facts) Access {
	a := Access{
		CanView: f.ViewerHasOtherAsContact ||
			f.OtherHasViewerAsContact ||
			f.ViewerAcceptedFromOther ||
			f.OtherAcceptedFromViewer ||
			f.HasHistory,
		IsBlockedByOther: f.BlockedByOther,
		HasAcceptedChat:  f.ViewerAcceptedFromOther,
	}

	switch {
	case f.BlockedByOther:
		a.DenyReason = DenyBlocked
	case f.ViewerHasOtherAsContact || f.ViewerAcceptedFromOther:
		a.CanSend = true
	default:
		a.DenyReason = DenyNotConnected
	}
	return a
}

// SendError converts a refused send into the matching sentinel. It returns nil
// when the send is allowed.
func (a Access) SendError() error {
	switch a.DenyReason {
	case DenyNone:
		return nil
	case DenyBlocked:
		return ErrBlockedByRecipient
	default:
		return ErrNotConnected
	}
}

// Engine resolves access between two stored users. The other messaging
// services go through it so the precondition order stays the same everywhere.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Pair is a validated (viewer, other) pair of active users.
type Pair struct {
	Viewer *models.User
	Other  *models.User
}

// LoadPair checks the self-target rule and that both users exist and are
// active. It runs before any relation query.
func (e *Engine) LoadPair(ctx context.Context, viewerID, otherID uuid.UUID) (*Pair, error) {
	if viewerID == uuid.Nil || otherID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if viewerID == otherID {
		return nil, ErrSelfTarget
	}
	viewer, err := e.activeUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	other, err := e.activeUser(ctx, otherID)
	if err != nil {
		return nil, err
	}
	return &Pair{Viewer: viewer, Other: other}, nil
}

// Resolve validates the pair and computes the access of viewerID toward otherID.
func (e *Engine) Resolve(ctx context.Context, viewerID, otherID uuid.UUID) (*Pair, Access, error) {
	pair, err := e.LoadPair(ctx, viewerID, otherID)
	if err != nil {
		return nil, Access{}, err
	}
	facts, err := e.store.LoadFacts(ctx, viewerID, otherID)
	if err != nil {
		return nil, Access{}, fmt.Errorf("load relationship facts: %w", err)
	}
	return pair, Resolve(facts), nil
}

func (e *Engine) activeUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := e.store.FindUser(ctx, id)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	if !user.IsActive {
		return nil, ErrUserNotFound
	}
	return user, nil
}
