// Package audit is the append-only record of actor-attributed actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// Entry is the caller-supplied part of an audit record. ID and CreatedAt are
// assigned on append.
type Entry struct {
	Actor    string
	Action   string
	Target   string
	TargetID string
	Details  any
	Channel  string
}

// Ledger appends audit entries and publishes each one to live listeners.
type Ledger struct {
	store     store.AuditStore
	publisher events.Publisher
}

// NewLedger creates a ledger. publisher may be nil.
func NewLedger(st store.AuditStore, publisher events.Publisher) *Ledger {
	return &Ledger{store: st, publisher: publisher}
}

// Append records entry. Actor and action are required.
func (l *Ledger) Append(ctx context.Context, entry Entry) (*models.AuditLogEntry, error) {
	record := &models.AuditLogEntry{
		Actor:    entry.Actor,
		Action:   entry.Action,
		Target:   optional(entry.Target),
		TargetID: optional(entry.TargetID),
		Channel:  optional(entry.Channel),
	}

	if entry.Details != nil {
		details, err := marshalDetails(entry.Details)
		if err != nil {
			return nil, err
		}
		record.Details = details
	}

	if err := l.store.AppendAudit(ctx, record); err != nil {
		return nil, err
	}

	log.Debug().Str("audit_id", record.ID).Str("actor", record.Actor).Str("action", record.Action).Msg("Appended audit entry")

	if l.publisher != nil {
		l.publisher.Publish(events.Event{Type: events.TypeAudit, Data: record})
	}
	return record, nil
}

// Query returns entries matching filter, newest first.
func (l *Ledger) Query(ctx context.Context, filter store.AuditFilter) ([]*models.AuditLogEntry, error) {
	return l.store.ListAudit(ctx, filter)
}

// Count returns the total number of entries.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	return l.store.CountAudit(ctx)
}

func marshalDetails(details any) (json.RawMessage, error) {
	switch d := details.(type) {
	case json.RawMessage:
		if !json.Valid(d) {
			return nil, store.Invalid("details", "must be valid JSON")
		}
		return d, nil
	case string:
		if !json.Valid([]byte(d)) {
			return nil, store.Invalid("details", "must be valid JSON")
		}
		return json.RawMessage(d), nil
	}

	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit details: %w", err)
	}
	return data, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
