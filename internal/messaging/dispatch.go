package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/metrics"
	"github.com/fleetcare/fleet-backend/internal/models"
)

const MaxContentLength = 1000

// Dispatcher validates and persists outbound messages.
type Dispatcher struct {
	engine   *Engine
	store    Store
	notifier Notifier
}

func NewDispatcher(engine *Engine, store Store, notifier Notifier) *Dispatcher {
	return &Dispatcher{engine: engine, store: store, notifier: notifier}
}

// NormalizeContent trims content and checks its length in characters.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 {
		return "", ErrEmptyContent
	}
	if n > MaxContentLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// Send stores one message from senderID to recipientID and returns the stored
// record. The notification that follows is best-effort and never fails the send.
func (d *Dispatcher) Send(ctx context.Context, senderID, recipientID uuid.UUID, content string) (*models.Message, error) {
	if senderID != uuid.Nil && senderID == recipientID {
		return nil, ErrSelfTarget
	}
	body, err := NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	pair, err := d.engine.LoadPair(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     body,
	}
	err = d.store.AppendMessage(ctx, msg, func(f Facts) error {
		return Resolve(f).SendError()
	})
	if err != nil {
		if KindOf(err) == KindForbidden {
			metrics.SendDenied.WithLabelValues(CodeOf(err)).Inc()
			slog.Info("message send denied",
				"user_id", senderID.String(),
				"counterpart_id", recipientID.String(),
				"code", CodeOf(err),
			)
			return nil, err
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	metrics.MessagesSent.Inc()
	d.notify(ctx, msg, pair.Viewer)
	return msg, nil
}

func (d *Dispatcher) notify(ctx context.Context, msg *models.Message, sender *models.User) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.MessageSent(ctx, msg, sender); err != nil {
		metrics.NotificationFailures.Inc()
		sentry.CaptureException(err)
		slog.Warn("message notification failed",
			"action", "notify_message",
			"user_id", msg.SenderID.String(),
			"counterpart_id", msg.RecipientID.String(),
			"message_id", msg.ID.String(),
			"error", err,
		)
	}
}
