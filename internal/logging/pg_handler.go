package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fleetcare/fleet-backend/internal/models"
)

const pgBatchSize = 50

// LogSink persists a batch of system log rows.
type LogSink func(batch []models.SystemLog) error

// GormSink writes batches to the system_logs table.
func GormSink(db *gorm.DB) LogSink {
	return func(batch []models.SystemLog) error {
		return db.CreateInBatches(batch, pgBatchSize).Error
	}
}

// PGHandler is an slog.Handler that buffers ERROR+ records and flushes them
// to the sink every interval or when the buffer fills up.
type PGHandler struct {
	sink   LogSink
	attrs  []slog.Attr
	shared *pgBuffer
}

type pgBuffer struct {
	mu     sync.Mutex
	buffer []models.SystemLog
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func NewPGHandler(sink LogSink, interval time.Duration) *PGHandler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h := &PGHandler{
		sink: sink,
		shared: &pgBuffer{
			buffer: make([]models.SystemLog, 0, pgBatchSize),
			ticker: time.NewTicker(interval),
			done:   make(chan struct{}),
		},
	}
	go h.flushLoop()
	return h
}

func (h *PGHandler) flushLoop() {
	for {
		select {
		case <-h.shared.ticker.C:
			h.Flush()
		case <-h.shared.done:
			h.Flush()
			return
		}
	}
}

// Flush writes any buffered records.
func (h *PGHandler) Flush() {
	b := h.shared
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buffer
	b.buffer = make([]models.SystemLog, 0, pgBatchSize)
	b.mu.Unlock()

	if err := h.sink(batch); err != nil {
		// WARN keeps the failure out of this handler.
		slog.Warn("failed to flush system logs", "error", err, "count", len(batch))
	}
}

func (h *PGHandler) Stop() {
	h.shared.once.Do(func() {
		h.shared.ticker.Stop()
		close(h.shared.done)
	})
}

// Enabled only handles ERROR and above.
func (h *PGHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelError
}

func (h *PGHandler) Handle(_ context.Context, record slog.Record) error {
	entry := models.SystemLog{
		ID:        uuid.New(),
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	}

	extra := make(map[string]interface{})
	apply := func(a slog.Attr) bool {
		switch a.Key {
		case "request_id":
			entry.RequestID = a.Value.String()
		case "user_id":
			s := a.Value.String()
			entry.UserID = &s
		case "counterpart_id":
			s := a.Value.String()
			entry.CounterpartID = &s
		case "action":
			entry.Action = a.Value.String()
		case "error":
			entry.Error = a.Value.String()
		case "latency_ms":
			switch v := a.Value.Any().(type) {
			case float64:
				entry.LatencyMs = int(math.Round(v))
			case int64:
				entry.LatencyMs = int(v)
			}
		default:
			extra[a.Key] = a.Value.Any()
		}
		return true
	}
	for _, a := range h.attrs {
		apply(a)
	}
	record.Attrs(apply)

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			entry.Extra = datatypes.JSON(b)
		}
	}

	b := h.shared
	b.mu.Lock()
	b.buffer = append(b.buffer, entry)
	needFlush := len(b.buffer) >= pgBatchSize
	b.mu.Unlock()

	if needFlush {
		go h.Flush()
	}
	return nil
}

func (h *PGHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PGHandler{sink: h.sink, attrs: merged, shared: h.shared}
}

func (h *PGHandler) WithGroup(string) slog.Handler {
	return h
}
