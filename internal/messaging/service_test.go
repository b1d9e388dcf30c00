package messaging_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcare/fleet-backend/internal/messaging"
	"github.com/fleetcare/fleet-backend/internal/messaging/memstore"
	"github.com/fleetcare/fleet-backend/internal/metrics"
	"github.com/fleetcare/fleet-backend/internal/models"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Message
	err  error
}

func (n *recordingNotifier) MessageSent(_ context.Context, msg *models.Message, _ *models.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	store         *memstore.Store
	engine        *messaging.Engine
	notifier      *recordingNotifier
	dispatcher    *messaging.Dispatcher
	relations     *messaging.RelationService
	history       *messaging.HistoryService
	conversations *messaging.ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()

	// Every message gets its own second so ordering does not depend on Seq.
	var mu sync.Mutex
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})

	engine := messaging.NewEngine(store)
	notifier := &recordingNotifier{}
	return &fixture{
		store:         store,
		engine:        engine,
		notifier:      notifier,
		dispatcher:    messaging.NewDispatcher(engine, store, notifier),
		relations:     messaging.NewRelationService(engine, store),
		history:       messaging.NewHistoryService(engine, store),
		conversations: messaging.NewConversationService(engine, store),
	}
}

func (f *fixture) access(t *testing.T, viewer, other uuid.UUID) messaging.Access {
	t.Helper()
	_, a, err := f.engine.Resolve(context.Background(), viewer, other)
	require.NoError(t, err)
	return a
}

func TestScenarioContactOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)

	ab, ba := f.access(t, a, b), f.access(t, b, a)
	assert.True(t, ab.CanSend)
	assert.False(t, ba.CanSend)
	assert.True(t, ab.CanView)
	assert.True(t, ba.CanView)

	_, err := f.dispatcher.Send(ctx, a, b, "hi Bob")
	require.NoError(t, err)

	_, err = f.dispatcher.Send(ctx, b, a, "hi Alice")
	assert.ErrorIs(t, err, messaging.ErrNotConnected)
	assert.Equal(t, messaging.CodeForbiddenNotConn, messaging.CodeOf(err))
	assert.Equal(t, 1, f.store.MessageCount())
}

func TestScenarioAcceptWithoutContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

	_, err := f.dispatcher.Send(ctx, a, b, "before accept")
	require.ErrorIs(t, err, messaging.ErrNotConnected)

	// Accept(B, fromA) stores ChatAcceptance(B->A); send rights follow the
	// owner of the acceptance.
	require.NoError(t, f.relations.Accept(ctx, b, a))

	ba := f.access(t, b, a)
	assert.True(t, ba.CanSend)
	assert.True(t, ba.HasAcceptedChat)
	assert.True(t, ba.CanView)
	ab := f.access(t, a, b)
	assert.True(t, ab.CanView)
	assert.False(t, ab.CanSend, "accepting grants nothing to the original sender")

	_, err = f.dispatcher.Send(ctx, b, a, "after accept")
	require.NoError(t, err)
	_, err = f.dispatcher.Send(ctx, a, b, "still not connected")
	assert.ErrorIs(t, err, messaging.ErrNotConnected)
}

func TestScenarioBlockAfterAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

	require.NoError(t, f.relations.Accept(ctx, a, b))
	_, err := f.dispatcher.Send(ctx, a, b, "hello")
	require.NoError(t, err)

	require.NoError(t, f.relations.Block(ctx, a, b))

	st := f.store.Relations(a, b)
	assert.True(t, st.Blocked)
	assert.False(t, st.Accepted, "block must drop the acceptance")

	ba := f.access(t, b, a)
	assert.False(t, ba.CanSend)
	assert.True(t, ba.IsBlockedByOther)
	assert.True(t, ba.CanView, "blocked user keeps history")

	_, err = f.dispatcher.Send(ctx, b, a, "still there?")
	assert.ErrorIs(t, err, messaging.ErrBlockedByRecipient)
	assert.Equal(t, messaging.CodeForbiddenBlocked, messaging.CodeOf(err))

	page, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: b, CounterpartID: a})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.True(t, page.IsBlockedByOther)
	assert.False(t, page.CanSendMessages)
}

func TestScenarioLegacyHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	for i := 0; i < 3; i++ {
		f.store.SeedMessage(a, b, fmt.Sprintf("legacy %d", i))
	}

	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		acc := f.access(t, pair[0], pair[1])
		assert.True(t, acc.CanView)
		assert.False(t, acc.CanSend)
		assert.Equal(t, messaging.DenyNotConnected, acc.DenyReason)

		_, err := f.dispatcher.Send(ctx, pair[0], pair[1], "new")
		assert.ErrorIs(t, err, messaging.ErrNotConnected)
	}

	page, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: b, CounterpartID: a})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
}

func TestBlockOverridesContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)
	f.store.AddContact(b, a)

	require.NoError(t, f.relations.Block(ctx, b, a))

	acc := f.access(t, a, b)
	assert.False(t, acc.CanSend)
	assert.Equal(t, messaging.DenyBlocked, acc.DenyReason)

	// The blocker is not restricted by its own block.
	assert.True(t, f.access(t, b, a).CanSend)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)

	tests := []struct {
		name      string
		sender    uuid.UUID
		recipient uuid.UUID
		content   string
		want      error
	}{
		{"self", a, a, "hi", messaging.ErrSelfTarget},
		{"empty", a, b, "   ", messaging.ErrEmptyContent},
		{"too long", a, b, string(make([]rune, messaging.MaxContentLength+1)), messaging.ErrContentTooLong},
		{"nil recipient", a, uuid.Nil, "hi", messaging.ErrInvalidUserID},
		{"unknown recipient", a, uuid.New(), "hi", messaging.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Send(ctx, tt.sender, tt.recipient, tt.content)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.store.MessageCount())
}

func TestSendToInactiveUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)
	f.store.SetActive(b, false)

	_, err := f.dispatcher.Send(ctx, a, b, "hello")
	assert.ErrorIs(t, err, messaging.ErrUserNotFound)
	assert.Equal(t, messaging.KindNotFound, messaging.KindOf(err))

	_, err = f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b})
	assert.ErrorIs(t, err, messaging.ErrUserNotFound)
}

func TestSendRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)

	msg, err := f.dispatcher.Send(ctx, a, b, "  brake pads arrived  ")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, "brake pads arrived", msg.Content)
	assert.False(t, msg.SentAt.IsZero())

	page, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: b, CounterpartID: a, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
	assert.Equal(t, msg.Content, page.Messages[0].Content)
	assert.Equal(t, a, page.Messages[0].SenderID)

	assert.Equal(t, 1, f.notifier.count())
}

func TestNotificationFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)
	f.notifier.err = errors.New("gateway down")

	before := testutil.ToFloat64(metrics.NotificationFailures)
	msg, err := f.dispatcher.Send(ctx, a, b, "hello")
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, 1, f.store.MessageCount())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationFailures))
}

func TestDeniedSendIsCountedAndNotNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

	counter := metrics.SendDenied.WithLabelValues(messaging.CodeForbiddenNotConn)
	before := testutil.ToFloat64(counter)

	_, err := f.dispatcher.Send(ctx, a, b, "hello")
	require.ErrorIs(t, err, messaging.ErrNotConnected)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.Zero(t, f.notifier.count())
}

func TestStoreFailureIsNotADenial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)

	boom := errors.New("connection refused")
	f.store.FailWith(boom)

	_, err := f.dispatcher.Send(ctx, a, b, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, messaging.KindInternal, messaging.KindOf(err))

	_, _, err = f.engine.Resolve(ctx, a, b)
	assert.Equal(t, messaging.KindInternal, messaging.KindOf(err))

	err = f.relations.Block(ctx, a, b)
	assert.Equal(t, messaging.KindInternal, messaging.KindOf(err))

	_, err = f.conversations.List(ctx, messaging.ConversationQuery{UserID: a})
	assert.Equal(t, messaging.KindInternal, messaging.KindOf(err))
}

func TestAcceptIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

	require.NoError(t, f.relations.Accept(ctx, a, b))
	require.NoError(t, f.relations.Accept(ctx, a, b))

	assert.Equal(t, messaging.RelationState{Accepted: true}, f.store.Relations(a, b))
}

func TestBlockIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

	require.NoError(t, f.relations.Block(ctx, a, b))
	require.NoError(t, f.relations.Block(ctx, a, b))

	assert.Equal(t, messaging.RelationState{Blocked: true}, f.store.Relations(a, b))
}

func TestAcceptAfterBlockRequiresUnblock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

	require.NoError(t, f.relations.Block(ctx, a, b))
	err := f.relations.Accept(ctx, a, b)
	assert.ErrorIs(t, err, messaging.ErrUnblockRequired)
	assert.Equal(t, messaging.KindConflict, messaging.KindOf(err))
	assert.Equal(t, messaging.RelationState{Blocked: true}, f.store.Relations(a, b))
}

func TestRelationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.store.AddUser("Alice")

	assert.ErrorIs(t, f.relations.Accept(ctx, a, a), messaging.ErrSelfTarget)
	assert.ErrorIs(t, f.relations.Block(ctx, a, a), messaging.ErrSelfTarget)
	assert.ErrorIs(t, f.relations.Block(ctx, a, uuid.New()), messaging.ErrUserNotFound)
	assert.ErrorIs(t, f.relations.Accept(ctx, uuid.Nil, a), messaging.ErrInvalidUserID)
}

func TestConcurrentAcceptAndBlockNeverLeaveAcceptance(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		f := newFixture(t)
		a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := f.relations.Accept(ctx, a, b)
			if err != nil {
				assert.ErrorIs(t, err, messaging.ErrUnblockRequired)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.relations.Block(ctx, a, b))
		}()
		wg.Wait()

		assert.Equal(t, messaging.RelationState{Blocked: true}, f.store.Relations(a, b))
	}
}

func TestHistoryRequiresViewAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")

	_, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b})
	assert.ErrorIs(t, err, messaging.ErrNoConversationAccess)
	assert.Equal(t, messaging.CodeForbiddenNotConn, messaging.CodeOf(err))

	_, err = f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: a})
	assert.ErrorIs(t, err, messaging.ErrSelfTarget)
}

func TestHistoryPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)
	f.store.AddContact(b, a)

	for i := 0; i < 25; i++ {
		sender, recipient := a, b
		if i%2 == 1 {
			sender, recipient = b, a
		}
		_, err := f.dispatcher.Send(ctx, sender, recipient, fmt.Sprintf("msg %02d", i))
		require.NoError(t, err)
	}

	first, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(25), first.Total)
	assert.Equal(t, 3, first.TotalPages)
	require.Len(t, first.Messages, 10)
	assert.Equal(t, "msg 24", first.Messages[0].Content, "newest first")
	assert.Equal(t, "msg 15", first.Messages[9].Content)

	last, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b, Page: 3, Limit: 10})
	require.NoError(t, err)
	require.Len(t, last.Messages, 5)
	assert.Equal(t, "msg 00", last.Messages[4].Content)

	beyond, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b, Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, beyond.Messages)
	assert.Empty(t, beyond.Messages)
	assert.Equal(t, int64(25), beyond.Total)

	clamped, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b, Page: -2, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, messaging.MaxLimit, clamped.Limit)
	assert.Len(t, clamped.Messages, 25)

	small, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, small.Limit)
	assert.Len(t, small.Messages, 1)
}

func TestHistorySnapshotKeepsPagesStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)

	for i := 0; i < 4; i++ {
		_, err := f.dispatcher.Send(ctx, a, b, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	first, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: b, CounterpartID: a, Page: 1, Limit: 2})
	require.NoError(t, err)
	require.NotZero(t, first.Snapshot)

	_, err = f.dispatcher.Send(ctx, a, b, "late arrival")
	require.NoError(t, err)

	second, err := f.history.History(ctx, messaging.HistoryQuery{
		ViewerID: b, CounterpartID: a, Page: 2, Limit: 2, Snapshot: first.Snapshot,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), second.Total)
	assert.Equal(t, first.Snapshot, second.Snapshot)
	require.Len(t, second.Messages, 2)
	assert.Equal(t, "msg 1", second.Messages[0].Content)
	assert.Equal(t, "msg 0", second.Messages[1].Content)

	fresh, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: b, CounterpartID: a, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), fresh.Total)
	assert.Equal(t, "late arrival", fresh.Messages[0].Content)
}

func TestListConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.store.AddUser("Dispatcher Dana")
	mech := f.store.AddUser("Mike Mechanic")
	tyre := f.store.AddUser("Tyre Shop")
	parts := f.store.AddUser("Parts Depot")
	stranger := f.store.AddUser("Stranger")

	f.store.AddContact(me, mech)
	f.store.AddContact(parts, me)
	f.store.AddContact(me, tyre)

	_, err := f.dispatcher.Send(ctx, me, mech, "oil change at 9?")
	require.NoError(t, err)
	_, err = f.dispatcher.Send(ctx, me, tyre, "need 4 winter tyres")
	require.NoError(t, err)
	f.store.SeedMessage(parts, me, "invoice attached")
	f.store.SeedMessage(stranger, me, "cheap parts!!!")
	_, err = f.dispatcher.Send(ctx, me, mech, "actually 10")
	require.NoError(t, err)

	require.NoError(t, f.relations.Block(ctx, tyre, me))

	page, err := f.conversations.List(ctx, messaging.ConversationQuery{UserID: me})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, messaging.DefaultLimit, page.Limit)
	require.Len(t, page.Conversations, 4)

	byID := make(map[uuid.UUID]messaging.ConversationSummary)
	for _, c := range page.Conversations {
		byID[c.Counterpart.ID] = c
	}
	assert.Equal(t, mech, page.Conversations[0].Counterpart.ID, "most recent first")
	assert.Equal(t, "actually 10", byID[mech].LastMessage.Content)
	assert.True(t, byID[mech].CanSend)

	assert.False(t, byID[tyre].CanSend)
	assert.True(t, byID[tyre].IsBlockedByOther)

	assert.False(t, byID[stranger].CanSend)
	assert.False(t, byID[parts].CanSend, "contact in the other direction only")

	onlyContacts, err := f.conversations.List(ctx, messaging.ConversationQuery{UserID: me, OnlyContacts: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), onlyContacts.Total)
	for _, c := range onlyContacts.Conversations {
		assert.NotEqual(t, stranger, c.Counterpart.ID)
	}

	search, err := f.conversations.List(ctx, messaging.ConversationQuery{UserID: me, Search: "  MECH "})
	require.NoError(t, err)
	require.Len(t, search.Conversations, 1)
	assert.Equal(t, mech, search.Conversations[0].Counterpart.ID)

	paged, err := f.conversations.List(ctx, messaging.ConversationQuery{UserID: me, Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, paged.Conversations, 1)
	assert.Equal(t, 2, paged.TotalPages)
}

func TestHugePageIsEmptyNotWrapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.store.AddUser("Alice"), f.store.AddUser("Bob")
	f.store.AddContact(a, b)
	for i := 0; i < 3; i++ {
		_, err := f.dispatcher.Send(ctx, a, b, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	const huge = 200000000000000000

	hist, err := f.history.History(ctx, messaging.HistoryQuery{ViewerID: a, CounterpartID: b, Page: huge, Limit: 50})
	require.NoError(t, err)
	assert.NotNil(t, hist.Messages)
	assert.Empty(t, hist.Messages)
	assert.Equal(t, int64(3), hist.Total)
	assert.Equal(t, 1, hist.TotalPages)
	assert.Equal(t, messaging.MaxPage, hist.Page)

	convs, err := f.conversations.List(ctx, messaging.ConversationQuery{UserID: a, Page: huge, Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, convs.Conversations)
	assert.Equal(t, int64(1), convs.Total)
	assert.Equal(t, 1, convs.TotalPages)
	assert.Equal(t, messaging.MaxPage, convs.Page)
}

func TestListConversationsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.store.AddUser("Lonely")

	page, err := f.conversations.List(ctx, messaging.ConversationQuery{UserID: me, Page: 5})
	require.NoError(t, err)
	assert.NotNil(t, page.Conversations)
	assert.Empty(t, page.Conversations)
	assert.Zero(t, page.Total)
	assert.Zero(t, page.TotalPages)

	_, err = f.conversations.List(ctx, messaging.ConversationQuery{UserID: uuid.Nil})
	assert.ErrorIs(t, err, messaging.ErrInvalidUserID)

	_, err = f.conversations.List(ctx, messaging.ConversationQuery{UserID: uuid.New()})
	assert.ErrorIs(t, err, messaging.ErrUserNotFound)
}
