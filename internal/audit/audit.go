// Package audit records authenticated mutations in an append-only table and
// fans committed events out to live notifiers.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"cs2kz-api/internal/model"
)

// Event is one authenticated mutation.
type Event struct {
	Name      string         `json:"event"`
	ActorID   uint64         `json:"actor_id"`
	TargetIDs []uint64       `json:"target_ids"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Notifier receives events after the transaction that produced them has
// committed. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Sink writes audit rows and publishes committed events.
type Sink struct {
	logger    *slog.Logger
	notifiers []Notifier
	Now       func() time.Time
}

func NewSink(logger *slog.Logger, notifiers ...Notifier) *Sink {
	return &Sink{
		logger:    logger.With("component", "audit"),
		notifiers: notifiers,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe adds a notifier. Not safe for use once the sink is shared.
func (s *Sink) Subscribe(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// Record appends e inside tx. The row shares the fate of tx: if tx rolls
// back, so does the entry. The stamped event is returned for Publish.
func (s *Sink) Record(tx *gorm.DB, e Event) (Event, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.Now()
	}
	if e.TargetIDs == nil {
		e.TargetIDs = []uint64{}
	}

	targets, err := json.Marshal(e.TargetIDs)
	if err != nil {
		return e, fmt.Errorf("audit: encode targets: %w", err)
	}
	entry := model.AuditEntry{
		Event:     e.Name,
		ActorID:   e.ActorID,
		TargetIDs: string(targets),
		CreatedOn: e.Timestamp,
	}
	if len(e.Extra) > 0 {
		extra, err := json.Marshal(e.Extra)
		if err != nil {
			return e, fmt.Errorf("audit: encode extra fields: %w", err)
		}
		entry.Extra = string(extra)
	}

	if err := tx.Create(&entry).Error; err != nil {
		return e, fmt.Errorf("audit: write entry: %w", err)
	}
	return e, nil
}

// Publish logs a committed event and hands it to every notifier.
func (s *Sink) Publish(ctx context.Context, e Event) {
	s.logger.InfoContext(ctx, e.Name,
		"actor_id", e.ActorID,
		"target_ids", e.TargetIDs,
		"extra", e.Extra,
	)
	for _, n := range s.notifiers {
		n.Notify(ctx, e)
	}
}

// Entries returns audit rows newest first, optionally limited to one event.
func Entries(ctx context.Context, db *gorm.DB, event string, limit int) ([]model.AuditEntry, error) {
	q := db.WithContext(ctx).Order("id DESC")
	if event != "" {
		q = q.Where("event = ?", event)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []model.AuditEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	return entries, nil
}
