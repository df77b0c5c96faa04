package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/bot"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/integrations"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/notify"
	"github.com/saga-it/qyburn/internal/seed"
	"github.com/saga-it/qyburn/internal/store/memory"
	"github.com/saga-it/qyburn/internal/workflow"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 2, 26, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	url string
	bus *events.Bus
}

func newTestEnv(t *testing.T, stream StreamConfig) *testEnv {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return fixedNow }

	st := memory.New(memory.WithClock(clock))
	cat, err := seed.Default()
	require.NoError(t, err)
	require.NoError(t, seed.Load(ctx, st, cat, fixedNow))

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	dir := integrations.NewStubDirectory()
	ledger := audit.NewLedger(st, bus)
	inbox := notify.NewInbox(st, bus)
	engine := workflow.NewEngine(st, dir, ledger, inbox, bus, workflow.WithClock(clock))

	srv := NewServer(Deps{
		Store:        st,
		Engine:       engine,
		Ledger:       ledger,
		Inbox:        inbox,
		Bus:          bus,
		Router:       bot.NewRouter(engine, nil),
		Conversation: bot.NewConversation(dir, integrations.StubChat{}, ledger, nil),
	}, stream)

	ts := httptest.NewServer(srv.Handler(zerolog.Nop()))
	t.Cleanup(ts.Close)

	return &testEnv{url: ts.URL, bus: bus}
}

// do sends body as JSON and decodes the response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.url+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var body map[string]string
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil, &body))
	require.Equal(t, "ok", body["status"])
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var stats workflow.Stats
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/dashboard", nil, &stats))
	require.Equal(t, 5, stats.LicenseCount)
	require.Equal(t, 3, stats.RestrictedGroupCount)
	require.Equal(t, 1, stats.PendingRequests)
	require.Equal(t, 2, stats.TemplateCount)
	require.Equal(t, 8, stats.AuditLogCount)
	require.Equal(t, 3, stats.KnowledgeDocCount)
}

func TestLicenses_CRUD(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var created models.License
	status := env.do(t, http.MethodPost, "/api/licenses", map[string]any{
		"name":       "Miro Business",
		"vendor":     "Miro",
		"totalSeats": 25,
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.ID)
	require.Nil(t, created.SKU)
	require.False(t, created.AutoApprove)

	var updated models.License
	status = env.do(t, http.MethodPatch, "/api/licenses/"+created.ID, map[string]any{"totalSeats": 40, "autoApprove": true}, &updated)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Miro Business", updated.Name)
	require.Equal(t, 40, updated.TotalSeats)
	require.True(t, updated.AutoApprove)
	require.Equal(t, created.CreatedAt, updated.CreatedAt)

	var list []models.License
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/licenses", nil, &list))
	require.Len(t, list, 6)

	var deleted successResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/licenses/"+created.ID, nil, &deleted))
	require.True(t, deleted.Success)

	var notFound errorResponse
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/licenses/"+created.ID, nil, &notFound))
	require.Equal(t, "Not found", notFound.Error)
}

func TestLicenses_Validation(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"missing name", http.MethodPost, "/api/licenses", map[string]any{"vendor": "Acme"}},
		{"total below used seats", http.MethodPatch, "/api/licenses/lic-002", map[string]any{"totalSeats": 10}},
		{"not json", http.MethodPost, "/api/licenses", "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			require.Equal(t, http.StatusBadRequest, env.do(t, tt.method, tt.path, tt.body, &resp))
			require.NotEmpty(t, resp.Error)
		})
	}
}

func TestLicenses_PatchIgnoresUsedSeats(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var updated models.License
	status := env.do(t, http.MethodPatch, "/api/licenses/lic-002", map[string]any{"usedSeats": 0, "description": "edited"}, &updated)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 24, updated.UsedSeats)
	require.Equal(t, "edited", *updated.Description)
}

func TestLicenses_AssignmentsAndRevoke(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var assignments []models.LicenseAssignment
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/licenses/lic-001/assignments", nil, &assignments))
	require.Len(t, assignments, 2)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/licenses/lic-404/assignments", nil, nil))

	body := map[string]string{"userEmail": "erik.svensson@saga.com", "actor": "admin@saga.com"}

	var license models.License
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/licenses/lic-003/revoke", body, &license))
	require.Equal(t, 37, license.UsedSeats)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/licenses/lic-003/revoke", body, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/licenses/lic-001/revoke",
		map[string]string{"userEmail": "anna.lindberg@saga.com"}, nil))
}

func TestGroups_CreateAndConflict(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var group models.RestrictedGroup
	status := env.do(t, http.MethodPost, "/api/groups", map[string]any{
		"azureGroupId":  "group-hr",
		"displayName":   "SG-HR-Records",
		"approverEmail": "hr.lead@saga.com",
	}, &group)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, group.RequiresJustification)

	require.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/groups", map[string]any{
		"azureGroupId":  "group-001",
		"displayName":   "Duplicate",
		"approverEmail": "someone@saga.com",
	}, nil))

	var updated models.RestrictedGroup
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/api/groups/"+group.ID, map[string]any{"requiresJustification": false}, &updated))
	require.False(t, updated.RequiresJustification)
	require.Equal(t, "SG-HR-Records", updated.DisplayName)
}

func TestGroupRequests_SubmitAndReview(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	body := map[string]string{
		"groupId":        "rg-003",
		"requesterEmail": "erik.svensson@saga.com",
		"justification":  "Quarter close reporting",
	}

	var created workflow.GroupResult
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/groups/requests", body, &created))
	require.Equal(t, workflow.ActionRequested, created.Action)
	require.Equal(t, "user-002", created.Request.RequesterID)

	var again workflow.GroupResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/groups/requests", body, &again))
	require.Equal(t, workflow.ActionAlreadyPending, again.Action)
	require.Equal(t, created.Request.ID, again.Request.ID)

	var filtered []models.GroupAccessRequest
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/groups/requests?groupId=rg-003", nil, &filtered))
	require.Len(t, filtered, 1)

	review := map[string]string{"id": created.Request.ID, "status": "approved", "reviewedBy": "cfo@saga.com"}

	var reviewed models.GroupAccessRequest
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/api/groups/requests", review, &reviewed))
	require.Equal(t, models.RequestStatusApproved, reviewed.Status)
	require.Equal(t, "cfo@saga.com", *reviewed.ReviewedBy)

	require.Equal(t, http.StatusConflict, env.do(t, http.MethodPatch, "/api/groups/requests", review, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/api/groups/requests",
		map[string]string{"status": "approved", "reviewedBy": "cfo@saga.com"}, nil))
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/groups/requests",
		map[string]string{"groupId": "rg-404", "requesterEmail": "erik.svensson@saga.com"}, nil))
}

func TestOnboarding(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var tmpl models.OnboardingTemplate
	status := env.do(t, http.MethodPost, "/api/onboarding", map[string]any{
		"name":  "Finance New Hire",
		"steps": []map[string]any{{"order": 1, "title": "Meet the controller", "type": "custom"}},
	}, &tmpl)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, tmpl.IsActive)
	require.Len(t, tmpl.Steps, 1)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/onboarding", map[string]any{
		"name":  "Broken",
		"steps": []map[string]any{{"title": "Teleport", "type": "magic"}},
	}, nil))

	var report workflow.OnboardingReport
	status = env.do(t, http.MethodPost, "/api/onboarding/ot-002/start",
		map[string]string{"employeeEmail": "anna.lindberg@saga.com", "actor": "admin@saga.com"}, &report)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Lab Technician Onboarding", report.TemplateName)
	require.Len(t, report.Steps, 3)
	require.Equal(t, workflow.StepManual, report.Steps[2].Status)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/onboarding/ot-404/start",
		map[string]string{"employeeEmail": "anna.lindberg@saga.com", "actor": "admin@saga.com"}, nil))
}

func TestKnowledge_CRUD(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var doc models.KnowledgeDocument
	status := env.do(t, http.MethodPost, "/api/knowledge", map[string]any{
		"title":   "Printer setup",
		"content": "Use the *SAGA-Print* queue.",
	}, &doc)
	require.Equal(t, http.StatusCreated, status)
	require.Empty(t, doc.Tags)

	var updated models.KnowledgeDocument
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/api/knowledge/"+doc.ID, map[string]any{"category": "Hardware"}, &updated))
	require.Equal(t, "Hardware", *updated.Category)
	require.Equal(t, "Printer setup", updated.Title)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/knowledge/"+doc.ID, nil, nil))
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/knowledge/"+doc.ID, nil, nil))
}

func TestAudit(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var entry models.AuditLogEntry
	status := env.do(t, http.MethodPost, "/api/audit", map[string]any{
		"actor":   "admin@saga.com",
		"action":  "policy.update",
		"target":  "MFA",
		"details": map[string]any{"enforced": true},
	}, &entry)
	require.Equal(t, http.StatusCreated, status)
	require.JSONEq(t, `{"enforced":true}`, string(entry.Details))
	require.Nil(t, entry.Channel)

	var entries []models.AuditLogEntry
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/audit?action=policy&limit=5", nil, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, entry.ID, entries[0].ID)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/audit?actor=qyburn-bot", nil, &entries))
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.Equal(t, models.BotActor, e.Actor)
	}

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/audit?limit=lots", nil, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/audit", map[string]any{"action": "anonymous"}, nil))
	require.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodDelete, "/api/audit", nil, nil))
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	var inbox notificationsResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/notifications", nil, &inbox))
	require.Len(t, inbox.Notifications, 3)
	require.Equal(t, 2, inbox.UnreadCount)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/api/notifications", map[string]any{"id": "notif-1"}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/notifications", nil, &inbox))
	require.Equal(t, 1, inbox.UnreadCount)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/api/notifications", map[string]any{"id": "notif-404"}, nil))
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/api/notifications", map[string]any{}, nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/api/notifications", map[string]any{"markAllRead": true}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/notifications", nil, &inbox))
	require.Zero(t, inbox.UnreadCount)
}

func TestREST_GzipResponses(t *testing.T) {
	env := newTestEnv(t, StreamConfig{})

	req, err := http.NewRequest(http.MethodGet, env.url+"/api/knowledge", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{workflow.ErrUpstreamUnavailable, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
