package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fleetcare/fleet-backend/internal/models"
)

// MessageEvent is the payload posted for every stored message.
type MessageEvent struct {
	Event       string    `json:"event"`
	MessageID   uuid.UUID `json:"message_id"`
	SenderID    uuid.UUID `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Preview     string    `json:"preview"`
	SentAt      time.Time `json:"sent_at"`
}

const previewLength = 120

func newMessageEvent(msg *models.Message, sender *models.User) MessageEvent {
	preview := []rune(msg.Content)
	if len(preview) > previewLength {
		preview = append(preview[:previewLength], '…')
	}
	ev := MessageEvent{
		Event:       "message.sent",
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Preview:     string(preview),
		SentAt:      msg.SentAt,
	}
	if sender != nil {
		ev.SenderName = sender.DisplayName
	}
	return ev
}

// WebhookNotifier posts message events to the push gateway.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) MessageSent(ctx context.Context, msg *models.Message, sender *models.User) error {
	body, err := json.Marshal(newMessageEvent(msg, sender))
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier only logs the event. Used when no gateway is configured.
type LogNotifier struct{}

func (LogNotifier) MessageSent(_ context.Context, msg *models.Message, _ *models.User) error {
	slog.Info("message notification",
		"action", "notify_message",
		"message_id", msg.ID.String(),
		"user_id", msg.SenderID.String(),
		"counterpart_id", msg.RecipientID.String(),
	)
	return nil
}
