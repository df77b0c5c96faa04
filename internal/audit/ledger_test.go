package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/saga-it/qyburn/internal/store/memory"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) {
	p.events = append(p.events, evt)
}

func tickingClock() func() time.Time {
	now := time.Date(2025, 2, 26, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestLedger_Append(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	ledger := NewLedger(memory.New(memory.WithClock(tickingClock())), pub)

	entry, err := ledger.Append(ctx, Entry{
		Actor:    models.BotActor,
		Action:   models.ActionLicenseAssign,
		Target:   "Microsoft 365 E3",
		TargetID: "lic-001",
		Details:  map[string]string{"email": "anna.lindberg@saga.com"},
		Channel:  "#it-support",
	})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.CreatedAt.IsZero())
	require.Equal(t, "lic-001", *entry.TargetID)
	require.JSONEq(t, `{"email":"anna.lindberg@saga.com"}`, string(entry.Details))

	require.Len(t, pub.events, 1)
	require.Equal(t, events.TypeAudit, pub.events[0].Type)

	t.Run("optional fields stay empty", func(t *testing.T) {
		entry, err := ledger.Append(ctx, Entry{Actor: "admin@saga.com", Action: models.ActionGroupDeny})
		require.NoError(t, err)
		require.Nil(t, entry.Target)
		require.Nil(t, entry.Channel)
		require.Nil(t, entry.Details)
	})

	t.Run("missing action is rejected before mutation", func(t *testing.T) {
		_, err := ledger.Append(ctx, Entry{Actor: "admin@saga.com"})
		require.True(t, store.IsValidation(err))

		count, err := ledger.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, count)
		require.Len(t, pub.events, 2)
	})

	t.Run("invalid raw details are rejected", func(t *testing.T) {
		_, err := ledger.Append(ctx, Entry{Actor: "admin@saga.com", Action: "x", Details: json.RawMessage("{nope")})
		require.True(t, store.IsValidation(err))
	})
}

func TestLedger_Query(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(memory.New(memory.WithClock(tickingClock())), nil)

	actions := []string{
		models.ActionLicenseAssign,
		models.ActionGroupRequest,
		models.ActionLicenseRevoke,
		models.ActionKBQuery,
	}
	for _, action := range actions {
		_, err := ledger.Append(ctx, Entry{Actor: models.BotActor, Action: action})
		require.NoError(t, err)
	}
	_, err := ledger.Append(ctx, Entry{Actor: "james.patel@saga.com", Action: models.ActionGroupRequest})
	require.NoError(t, err)

	t.Run("all entries newest first", func(t *testing.T) {
		entries, err := ledger.Query(ctx, store.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 5)
		for i := 1; i < len(entries); i++ {
			require.False(t, entries[i].CreatedAt.After(entries[i-1].CreatedAt))
		}
		require.Equal(t, "james.patel@saga.com", entries[0].Actor)
	})

	t.Run("action filter matches the dotted namespace", func(t *testing.T) {
		entries, err := ledger.Query(ctx, store.AuditFilter{Action: "license"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, models.ActionLicenseRevoke, entries[0].Action)
	})

	t.Run("actor filter is exact", func(t *testing.T) {
		entries, err := ledger.Query(ctx, store.AuditFilter{Actor: "james.patel"})
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("limit applies after sorting", func(t *testing.T) {
		entries, err := ledger.Query(ctx, store.AuditFilter{Actor: models.BotActor, Limit: 2})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, models.ActionKBQuery, entries[0].Action)
	})
}
