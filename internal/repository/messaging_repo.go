package repository

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fleetcare/fleet-backend/internal/messaging"
	"github.com/fleetcare/fleet-backend/internal/models"
)

// MessagingRepository implements messaging.Store on Postgres.
//
// Sends take FOR UPDATE on both users of the pair, in uuid order, and
// accept/block take FOR UPDATE on the actor's row. A send to R and a block
// issued by R never interleave, and sends within one pair commit in Seq order
// so a history snapshot taken at MAX(seq) never gains an older row later.
type MessagingRepository struct {
	db *gorm.DB
}

func NewMessagingRepository(db *gorm.DB) *MessagingRepository {
	return &MessagingRepository{db: db}
}

func (r *MessagingRepository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, messaging.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *MessagingRepository) LoadFacts(ctx context.Context, viewerID, otherID uuid.UUID) (messaging.Facts, error) {
	facts, err := loadFactsBatch(r.db.WithContext(ctx), viewerID, []uuid.UUID{otherID})
	if err != nil {
		return messaging.Facts{}, err
	}
	return facts[otherID], nil
}

func (r *MessagingRepository) LoadFactsBatch(ctx context.Context, viewerID uuid.UUID, otherIDs []uuid.UUID) (map[uuid.UUID]messaging.Facts, error) {
	return loadFactsBatch(r.db.WithContext(ctx), viewerID, otherIDs)
}

func (r *MessagingRepository) AppendMessage(ctx context.Context, msg *models.Message, authorize func(messaging.Facts) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPair(tx, msg.SenderID, msg.RecipientID); err != nil {
			return err
		}

		facts, err := loadFactsBatch(tx, msg.SenderID, []uuid.UUID{msg.RecipientID})
		if err != nil {
			return err
		}
		if err := authorize(facts[msg.RecipientID]); err != nil {
			return err
		}

		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		// Stamped under the pair lock from the database clock, so SentAt
		// order matches Seq order across app instances.
		var now time.Time
		if err := tx.Raw("SELECT clock_timestamp()").Scan(&now).Error; err != nil {
			return err
		}
		msg.SentAt = now.UTC()
		return tx.Create(msg).Error
	})
}

func (r *MessagingRepository) UpdateRelations(ctx context.Context, actorID, targetID uuid.UUID, decide func(messaging.RelationState) (messaging.RelationChange, error)) (messaging.RelationChange, error) {
	var applied messaging.RelationChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUser(tx, actorID, "UPDATE"); err != nil {
			return err
		}

		var state messaging.RelationState
		var n int64
		if err := tx.Model(&models.ChatAcceptance{}).
			Where("user_id = ? AND from_user_id = ?", actorID, targetID).
			Count(&n).Error; err != nil {
			return err
		}
		state.Accepted = n > 0
		if err := tx.Model(&models.Block{}).
			Where("blocker_id = ? AND blocked_id = ?", actorID, targetID).
			Count(&n).Error; err != nil {
			return err
		}
		state.Blocked = n > 0

		change, err := decide(state)
		if err != nil {
			return err
		}

		if change.AddBlocked {
			block := models.Block{ID: uuid.New(), BlockerID: actorID, BlockedID: targetID}
			if err := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&block).Error; err != nil {
				return err
			}
		}
		if change.RemoveAccepted {
			if err := tx.Where("user_id = ? AND from_user_id = ?", actorID, targetID).
				Delete(&models.ChatAcceptance{}).Error; err != nil {
				return err
			}
		}
		if change.AddAccepted {
			acceptance := models.ChatAcceptance{ID: uuid.New(), UserID: actorID, FromUserID: targetID}
			if err := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{DoNothing: true}).
				Create(&acceptance).Error; err != nil {
				return err
			}
		}
		applied = change
		return nil
	})
	if err != nil {
		return messaging.RelationChange{}, err
	}
	return applied, nil
}

func (r *MessagingRepository) ListHistory(ctx context.Context, f messaging.HistoryFilter) ([]models.Message, int64, int64, error) {
	db := r.db.WithContext(ctx)
	pair := betweenUsers(f.UserA, f.UserB)

	snapshot := f.Snapshot
	if snapshot <= 0 {
		if err := db.Model(&models.Message{}).
			Scopes(pair).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&snapshot).Error; err != nil {
			return nil, 0, 0, err
		}
	}

	var total int64
	if err := db.Model(&models.Message{}).
		Scopes(pair).
		Where("seq <= ?", snapshot).
		Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}

	var msgs []models.Message
	if err := db.Scopes(pair).
		Where("seq <= ?", snapshot).
		Order("sent_at DESC, seq DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&msgs).Error; err != nil {
		return nil, 0, 0, err
	}
	return msgs, total, snapshot, nil
}

// latestPerCounterpart picks the newest message per counterparty with
// DISTINCT ON, then applies the search and contact filters.
const latestPerCounterpart = `
WITH latest AS (
	SELECT DISTINCT ON (counterpart_id) counterpart_id, id AS message_id, seq, sent_at
	FROM (
		SELECT CASE WHEN sender_id = @user THEN recipient_id ELSE sender_id END AS counterpart_id,
			id, seq, sent_at
		FROM messages
		WHERE sender_id = @user OR recipient_id = @user
	) AS exchanged
	ORDER BY counterpart_id, sent_at DESC, seq DESC
), filtered AS (
	SELECT latest.*
	FROM latest
	JOIN users ON users.id = latest.counterpart_id
	WHERE (@pattern = '' OR users.display_name ILIKE @pattern)
	AND (NOT @only_contacts OR EXISTS (
		SELECT 1 FROM contacts
		WHERE (contacts.owner_id = @user AND contacts.contact_id = latest.counterpart_id)
		   OR (contacts.owner_id = latest.counterpart_id AND contacts.contact_id = @user)
	))
)
`

func (r *MessagingRepository) ListConversations(ctx context.Context, f messaging.ConversationFilter) ([]messaging.ConversationRow, int64, error) {
	db := r.db.WithContext(ctx)

	pattern := ""
	if f.Search != "" {
		pattern = "%" + escapeLike(f.Search) + "%"
	}
	args := map[string]interface{}{
		"user":          f.UserID,
		"pattern":       pattern,
		"only_contacts": f.OnlyContacts,
		"limit":         f.Limit,
		"offset":        f.Offset,
	}

	var total int64
	if err := db.Raw(latestPerCounterpart+`SELECT COUNT(*) FROM filtered`, args).
		Scan(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	var refs []struct {
		CounterpartID uuid.UUID
		MessageID     uuid.UUID
	}
	if err := db.Raw(latestPerCounterpart+`
SELECT counterpart_id, message_id FROM filtered
ORDER BY sent_at DESC, seq DESC
LIMIT @limit OFFSET @offset`, args).
		Scan(&refs).Error; err != nil {
		return nil, 0, err
	}
	if len(refs) == 0 {
		return nil, total, nil
	}

	userIDs := make([]uuid.UUID, len(refs))
	messageIDs := make([]uuid.UUID, len(refs))
	for i, ref := range refs {
		userIDs[i] = ref.CounterpartID
		messageIDs[i] = ref.MessageID
	}

	var users []models.User
	if err := db.Unscoped().Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	var msgs []models.Message
	if err := db.Where("id IN ?", messageIDs).Find(&msgs).Error; err != nil {
		return nil, 0, err
	}

	usersByID := make(map[uuid.UUID]models.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}
	msgsByID := make(map[uuid.UUID]models.Message, len(msgs))
	for _, m := range msgs {
		msgsByID[m.ID] = m
	}

	rows := make([]messaging.ConversationRow, 0, len(refs))
	for _, ref := range refs {
		rows = append(rows, messaging.ConversationRow{
			Counterpart: usersByID[ref.CounterpartID],
			LastMessage: msgsByID[ref.MessageID],
		})
	}
	return rows, total, nil
}

// loadFactsBatch answers the six relationship facts for viewer against each
// id in others with one query per relation kind.
func loadFactsBatch(db *gorm.DB, viewer uuid.UUID, others []uuid.UUID) (map[uuid.UUID]messaging.Facts, error) {
	facts := make(map[uuid.UUID]messaging.Facts, len(others))
	if len(others) == 0 {
		return facts, nil
	}
	for _, id := range others {
		facts[id] = messaging.Facts{}
	}

	mark := func(ids []uuid.UUID, set func(*messaging.Facts)) {
		for _, id := range ids {
			f := facts[id]
			set(&f)
			facts[id] = f
		}
	}

	ids, err := pluckIDs(db, &models.Block{}, "blocker_id", "blocker_id IN ? AND blocked_id = ?", others, viewer)
	if err != nil {
		return nil, err
	}
	mark(ids, func(f *messaging.Facts) { f.BlockedByOther = true })

	ids, err = pluckIDs(db, &models.Contact{}, "contact_id", "owner_id = ? AND contact_id IN ?", viewer, others)
	if err != nil {
		return nil, err
	}
	mark(ids, func(f *messaging.Facts) { f.ViewerHasOtherAsContact = true })

	ids, err = pluckIDs(db, &models.Contact{}, "owner_id", "owner_id IN ? AND contact_id = ?", others, viewer)
	if err != nil {
		return nil, err
	}
	mark(ids, func(f *messaging.Facts) { f.OtherHasViewerAsContact = true })

	ids, err = pluckIDs(db, &models.ChatAcceptance{}, "from_user_id", "user_id = ? AND from_user_id IN ?", viewer, others)
	if err != nil {
		return nil, err
	}
	mark(ids, func(f *messaging.Facts) { f.ViewerAcceptedFromOther = true })

	ids, err = pluckIDs(db, &models.ChatAcceptance{}, "user_id", "user_id IN ? AND from_user_id = ?", others, viewer)
	if err != nil {
		return nil, err
	}
	mark(ids, func(f *messaging.Facts) { f.OtherAcceptedFromViewer = true })

	var exchanged []struct{ CounterpartID uuid.UUID }
	if err := db.Raw(`
SELECT DISTINCT CASE WHEN sender_id = @viewer THEN recipient_id ELSE sender_id END AS counterpart_id
FROM messages
WHERE (sender_id = @viewer AND recipient_id IN @others)
   OR (recipient_id = @viewer AND sender_id IN @others)`,
		map[string]interface{}{"viewer": viewer, "others": others}).
		Scan(&exchanged).Error; err != nil {
		return nil, err
	}
	for _, row := range exchanged {
		f := facts[row.CounterpartID]
		f.HasHistory = true
		facts[row.CounterpartID] = f
	}

	return facts, nil
}

func pluckIDs(db *gorm.DB, model interface{}, column, query string, args ...interface{}) ([]uuid.UUID, error) {
	var rows []struct{ ID uuid.UUID }
	if err := db.Model(model).
		Select(column+" AS id").
		Where(query, args...).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func lockUser(tx *gorm.DB, id uuid.UUID, strength string) error {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: strength}).
		Select("id").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return messaging.ErrUserNotFound
	}
	return err
}

func lockPair(tx *gorm.DB, a, b uuid.UUID) error {
	first, second := a, b
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
	}
	if err := lockUser(tx, first, "UPDATE"); err != nil {
		return err
	}
	if first == second {
		return nil
	}
	return lockUser(tx, second, "UPDATE")
}

func betweenUsers(a, b uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))", a, b, b, a)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ messaging.Store = (*MessagingRepository)(nil)
