// Package memstore is an in-memory messaging.Store for tests and local runs.
// A single mutex stands in for the row locks of the SQL implementation.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/messaging"
	"github.com/fleetcare/fleet-backend/internal/models"
)

type edge struct {
	from uuid.UUID
	to   uuid.UUID
}

type Store struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	contacts map[edge]bool
	accepted map[edge]bool
	blocked  map[edge]bool
	messages []models.Message
	seq      int64
	now      func() time.Time
	failWith error
}

func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]models.User),
		contacts: make(map[edge]bool),
		accepted: make(map[edge]bool),
		blocked:  make(map[edge]bool),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for SentAt.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// AddUser registers an active user and returns its id.
func (s *Store) AddUser(displayName string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = models.User{
		ID:          id,
		Email:       strings.ToLower(strings.ReplaceAll(displayName, " ", ".")) + "@example.com",
		DisplayName: displayName,
		Role:        models.RoleClient,
		IsActive:    true,
	}
	return id
}

func (s *Store) SetActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.IsActive = active
	s.users[id] = u
}

// AddContact records Contact(owner->contact).
func (s *Store) AddContact(owner, contact uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[edge{owner, contact}] = true
}

// SeedMessage inserts a message without any access check.
func (s *Store) SeedMessage(sender, recipient uuid.UUID, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := models.Message{SenderID: sender, RecipientID: recipient, Content: content}
	s.insertLocked(&msg)
	return msg
}

// Relations reads Accepted and Blocked for actor->target in one locked read.
func (s *Store) Relations(actor, target uuid.UUID) messaging.RelationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := edge{actor, target}
	return messaging.RelationState{Accepted: s.accepted[e], Blocked: s.blocked[e]}
}

func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Store) FindUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, messaging.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) LoadFacts(_ context.Context, viewerID, otherID uuid.UUID) (messaging.Facts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return messaging.Facts{}, s.failWith
	}
	return s.factsLocked(viewerID, otherID), nil
}

func (s *Store) LoadFactsBatch(_ context.Context, viewerID uuid.UUID, otherIDs []uuid.UUID) (map[uuid.UUID]messaging.Facts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make(map[uuid.UUID]messaging.Facts, len(otherIDs))
	for _, id := range otherIDs {
		out[id] = s.factsLocked(viewerID, id)
	}
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, msg *models.Message, authorize func(messaging.Facts) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if err := authorize(s.factsLocked(msg.SenderID, msg.RecipientID)); err != nil {
		return err
	}
	s.insertLocked(msg)
	return nil
}

func (s *Store) UpdateRelations(_ context.Context, actorID, targetID uuid.UUID, decide func(messaging.RelationState) (messaging.RelationChange, error)) (messaging.RelationChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return messaging.RelationChange{}, s.failWith
	}
	e := edge{actorID, targetID}
	change, err := decide(messaging.RelationState{Accepted: s.accepted[e], Blocked: s.blocked[e]})
	if err != nil {
		return messaging.RelationChange{}, err
	}
	if change.AddBlocked {
		s.blocked[e] = true
	}
	if change.RemoveAccepted {
		delete(s.accepted, e)
	}
	if change.AddAccepted {
		s.accepted[e] = true
	}
	return change, nil
}

func (s *Store) ListHistory(_ context.Context, f messaging.HistoryFilter) ([]models.Message, int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, 0, 0, s.failWith
	}

	snapshot := f.Snapshot
	var pair []models.Message
	for _, m := range s.messages {
		if !between(m, f.UserA, f.UserB) {
			continue
		}
		if f.Snapshot > 0 && m.Seq > f.Snapshot {
			continue
		}
		if f.Snapshot <= 0 && m.Seq > snapshot {
			snapshot = m.Seq
		}
		pair = append(pair, m)
	}
	sortNewestFirst(pair)

	total := int64(len(pair))
	if f.Offset >= len(pair) {
		return []models.Message{}, total, snapshot, nil
	}
	end := f.Offset + f.Limit
	if end > len(pair) {
		end = len(pair)
	}
	return append([]models.Message(nil), pair[f.Offset:end]...), total, snapshot, nil
}

func (s *Store) ListConversations(_ context.Context, f messaging.ConversationFilter) ([]messaging.ConversationRow, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, 0, s.failWith
	}

	latest := make(map[uuid.UUID]models.Message)
	for _, m := range s.messages {
		if m.SenderID != f.UserID && m.RecipientID != f.UserID {
			continue
		}
		other := m.CounterpartOf(f.UserID)
		if cur, ok := latest[other]; !ok || newer(m, cur) {
			latest[other] = m
		}
	}

	search := strings.ToLower(f.Search)
	var rows []messaging.ConversationRow
	for other, m := range latest {
		u := s.users[other]
		if search != "" && !strings.Contains(strings.ToLower(u.DisplayName), search) {
			continue
		}
		if f.OnlyContacts && !s.contacts[edge{f.UserID, other}] && !s.contacts[edge{other, f.UserID}] {
			continue
		}
		rows = append(rows, messaging.ConversationRow{Counterpart: u, LastMessage: m})
	}
	sort.Slice(rows, func(i, j int) bool {
		return newer(rows[i].LastMessage, rows[j].LastMessage)
	})

	total := int64(len(rows))
	if f.Offset >= len(rows) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[f.Offset:end], total, nil
}

func (s *Store) factsLocked(viewer, other uuid.UUID) messaging.Facts {
	vo, ov := edge{viewer, other}, edge{other, viewer}
	f := messaging.Facts{
		BlockedByOther:          s.blocked[ov],
		ViewerHasOtherAsContact: s.contacts[vo],
		OtherHasViewerAsContact: s.contacts[ov],
		ViewerAcceptedFromOther: s.accepted[vo],
		OtherAcceptedFromViewer: s.accepted[ov],
	}
	for _, m := range s.messages {
		if between(m, viewer, other) {
			f.HasHistory = true
			break
		}
	}
	return f
}

func (s *Store) insertLocked(msg *models.Message) {
	s.seq++
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.Seq = s.seq
	msg.SentAt = s.now().UTC()
	s.messages = append(s.messages, *msg)
}

func between(m models.Message, a, b uuid.UUID) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

func newer(a, b models.Message) bool {
	if !a.SentAt.Equal(b.SentAt) {
		return a.SentAt.After(b.SentAt)
	}
	return a.Seq > b.Seq
}

func sortNewestFirst(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool { return newer(msgs[i], msgs[j]) })
}

var _ messaging.Store = (*Store)(nil)
