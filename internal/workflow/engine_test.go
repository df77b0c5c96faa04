package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/integrations"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/notify"
	"github.com/saga-it/qyburn/internal/seed"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/saga-it/qyburn/internal/store/memory"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 2, 26, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) count(typ events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	for _, evt := range p.events {
		if evt.Type == typ {
			n++
		}
	}
	return n
}

// openDirectory resolves every address and can be told to fail provisioning.
type openDirectory struct {
	mu          sync.Mutex
	failAll     bool
	assigned    []string
	revoked     []string
	memberships map[string][]string
}

func (d *openDirectory) GetUserByEmail(_ context.Context, email string) (*integrations.User, error) {
	if d.failAll {
		return nil, errors.New("directory down")
	}
	return &integrations.User{ID: "id-" + email, DisplayName: email, Mail: email}, nil
}

func (d *openDirectory) AssignLicense(_ context.Context, userID, sku string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return errors.New("directory down")
	}
	d.assigned = append(d.assigned, userID+":"+sku)
	return nil
}

func (d *openDirectory) RevokeLicense(_ context.Context, userID, sku string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return errors.New("directory down")
	}
	d.revoked = append(d.revoked, userID+":"+sku)
	return nil
}

func (d *openDirectory) AddUserToGroup(_ context.Context, groupID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memberships == nil {
		d.memberships = make(map[string][]string)
	}
	d.memberships[groupID] = append(d.memberships[groupID], userID)
	return nil
}

// failingAssign resolves users like the stub but cannot provision licenses.
type failingAssign struct {
	*integrations.StubDirectory
}

func (failingAssign) AssignLicense(context.Context, string, string) error {
	return errors.New("graph returned 503")
}

type fixture struct {
	engine    *Engine
	store     *memory.Store
	publisher *recordingPublisher
	messaging *integrations.StubMessaging
	inbox     *notify.Inbox
	ledger    *audit.Ledger
}

func newFixture(t *testing.T, dir integrations.Directory) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New(memory.WithClock(func() time.Time { return fixedNow }))
	cat, err := seed.Default()
	require.NoError(t, err)
	require.NoError(t, seed.Load(ctx, st, cat, fixedNow))

	pub := &recordingPublisher{}
	ledger := audit.NewLedger(st, pub)
	inbox := notify.NewInbox(st, pub)
	msg := integrations.NewStubMessaging()

	return &fixture{
		engine:    NewEngine(st, dir, ledger, inbox, pub, WithMessaging(msg), WithClock(func() time.Time { return fixedNow })),
		store:     st,
		publisher: pub,
		messaging: msg,
		inbox:     inbox,
		ledger:    ledger,
	}
}

func caller(email string) Caller {
	return Caller{Email: email, Channel: "#it-support"}
}

func TestRequestLicense_List(t *testing.T) {
	f := newFixture(t, integrations.NewStubDirectory())

	res, err := f.engine.RequestLicense(context.Background(), caller("erik.svensson@saga.com"), "   ")
	require.NoError(t, err)
	require.Equal(t, ActionList, res.Action)
	for _, name := range []string{"Microsoft 365 E3", "Adobe Creative Cloud", "JetBrains All Products", "Slack Pro", "Figma Organization"} {
		require.Contains(t, res.Text, name)
	}
	require.Contains(t, res.Text, "/qyburn-license <software name>")
	require.Contains(t, res.Text, "44 seats available, auto-approve")

	entries, err := f.ledger.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, entries)
}

func TestRequestLicense_NotFound(t *testing.T) {
	f := newFixture(t, integrations.NewStubDirectory())

	res, err := f.engine.RequestLicense(context.Background(), caller("erik.svensson@saga.com"), "Photoshop Elements")
	require.NoError(t, err)
	require.Equal(t, ActionUnavailable, res.Action)
	require.Empty(t, res.LicenseName)
	require.Contains(t, res.Text, `"Photoshop Elements"`)
}

func TestRequestLicense_AutoApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, integrations.NewStubDirectory())

	res, err := f.engine.RequestLicense(ctx, caller("maria.chen@saga.com"), "Microsoft 365")
	require.NoError(t, err)
	require.Equal(t, ActionAssigned, res.Action)
	require.Equal(t, "Microsoft 365 E3", res.LicenseName)
	require.Contains(t, res.Text, "M365-E3")

	license, err := f.store.GetLicense(ctx, "lic-001")
	require.NoError(t, err)
	require.Equal(t, 157, license.UsedSeats)

	entries, err := f.ledger.Query(ctx, store.AuditFilter{Action: "license.assign", Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.BotActor, entries[0].Actor)
	require.Equal(t, "lic-001", *entries[0].TargetID)
	require.Equal(t, "#it-support", *entries[0].Channel)

	require.Equal(t, 1, f.publisher.count(events.TypeStats))
}

func TestRequestLicense_AlreadyAssigned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, integrations.NewStubDirectory())

	res, err := f.engine.RequestLicense(ctx, caller("anna.lindberg@saga.com"), "microsoft")
	require.NoError(t, err)
	require.Equal(t, ActionAssigned, res.Action)
	require.Contains(t, res.Text, "already have")

	license, err := f.store.GetLicense(ctx, "lic-001")
	require.NoError(t, err)
	require.Equal(t, 156, license.UsedSeats)
}

func TestRequestLicense_ManualApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, integrations.NewStubDirectory())

	res, err := f.engine.RequestLicense(ctx, caller("erik.svensson@saga.com"), "adobe")
	require.NoError(t, err)
	require.Equal(t, ActionPending, res.Action)
	require.Equal(t, "Adobe Creative Cloud", res.LicenseName)
	require.Contains(t, res.Text, "Cost: $82.99/month per seat")

	license, err := f.store.GetLicense(ctx, "lic-002")
	require.NoError(t, err)
	require.Equal(t, 24, license.UsedSeats)

	entries, err := f.ledger.Query(ctx, store.AuditFilter{Action: "license.request"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	notes, err := f.inbox.List(ctx)
	require.NoError(t, err)
	require.Equal(t, models.NotificationRequest, notes[0].Type)
}

func TestRequestLicense_FullCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, integrations.NewStubDirectory())

	license, err := f.store.GetLicense(ctx, "lic-004")
	require.NoError(t, err)
	license.TotalSeats = license.UsedSeats
	require.NoError(t, f.store.UpdateLicense(ctx, license))

	res, err := f.engine.RequestLicense(ctx, caller("maria.chen@saga.com"), "slack")
	require.NoError(t, err)
	require.Equal(t, ActionUnavailable, res.Action)
	require.Equal(t, "Slack Pro", res.LicenseName)
	require.Contains(t, res.Text, "full capacity")
	require.Contains(t, res.Text, "156/156")

	notes, err := f.inbox.List(ctx)
	require.NoError(t, err)
	require.Equal(t, models.NotificationInfo, notes[0].Type)
	require.Contains(t, notes[0].Message, "maria.chen@saga.com")
}

func TestRequestLicense_AssignmentFailureReleasesSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingAssign{integrations.NewStubDirectory()})

	res, err := f.engine.RequestLicense(ctx, caller("maria.chen@saga.com"), "jetbrains")
	require.NoError(t, err)
	require.Equal(t, ActionAssignmentFailed, res.Action)
	require.NotContains(t, res.Text, "auto-provisioned")

	license, err := f.store.GetLicense(ctx, "lic-003")
	require.NoError(t, err)
	require.Equal(t, 38, license.UsedSeats)

	assignments, err := f.store.ListAssignments(ctx, "lic-003")
	require.NoError(t, err)
	for _, a := range assignments {
		require.NotEqual(t, "maria.chen@saga.com", a.UserEmail)
	}

	entries, err := f.ledger.Query(ctx, store.AuditFilter{Action: "license.assign"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestRequestLicense_UnknownUser(t *testing.T) {
	f := newFixture(t, integrations.NewStubDirectory())

	res, err := f.engine.RequestLicense(context.Background(), caller("contractor@example.com"), "slack")
	require.NoError(t, err)
	require.Equal(t, ActionAssignmentFailed, res.Action)
}

func TestRequestLicense_NoSKUAssignsLocally(t *testing.T) {
	ctx := context.Background()
	dir := &openDirectory{}
	f := newFixture(t, dir)

	require.NoError(t, f.store.CreateLicense(ctx, &models.License{
		ID: "lic-100", Name: "Notion Plus", Vendor: "Notion", TotalSeats: 2, AutoApprove: true,
	}))

	res, err := f.engine.RequestLicense(ctx, caller("new.hire@saga.com"), "notion")
	require.NoError(t, err)
	require.Equal(t, ActionAssigned, res.Action)
	require.Contains(t, res.Text, "SKU: N/A")
	require.Empty(t, dir.assigned)
}

func TestRequestLicense_SeatInvariantUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	dir := &openDirectory{}
	f := newFixture(t, dir)

	require.NoError(t, f.store.CreateLicense(ctx, &models.License{
		ID: "lic-200", Name: "Sentry Business", Vendor: "Sentry", SKU: ptr("SENTRY"), TotalSeats: 5, AutoApprove: true,
	}))

	var wg sync.WaitGroup
	results := make([]*LicenseResult, 25)
	for i := range results {
		wg.Go(func() {
			res, err := f.engine.RequestLicense(ctx, caller(fmt.Sprintf("user-%d@saga.com", i)), "sentry")
			require.NoError(t, err)
			results[i] = res
		})
	}
	wg.Wait()

	counts := make(map[Action]int)
	for _, res := range results {
		counts[res.Action]++
	}
	require.Equal(t, 5, counts[ActionAssigned])
	require.Equal(t, 20, counts[ActionUnavailable])
	require.Zero(t, counts[ActionPending])

	license, err := f.store.GetLicense(ctx, "lic-200")
	require.NoError(t, err)
	require.Equal(t, 5, license.UsedSeats)
	require.Len(t, dir.assigned, 5)
}

func TestRequestLicense_ApprovalPartition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &openDirectory{})

	licenses, err := f.store.ListLicenses(ctx)
	require.NoError(t, err)

	for _, l := range licenses {
		t.Run(l.Name, func(t *testing.T) {
			res, err := f.engine.RequestLicense(ctx, caller("partition@saga.com"), l.Name)
			require.NoError(t, err)
			if l.AutoApprove {
				require.Equal(t, ActionAssigned, res.Action)
			} else {
				require.Equal(t, ActionPending, res.Action)
			}
		})
	}
}

func TestRevokeLicense(t *testing.T) {
	ctx := context.Background()
	dir := &openDirectory{}
	f := newFixture(t, dir)

	license, err := f.engine.RevokeLicense(ctx, "lic-003", "Erik.Svensson@saga.com", "admin@saga.com")
	require.NoError(t, err)
	require.Equal(t, 37, license.UsedSeats)
	require.Equal(t, []string{"user-002:JB-ALL"}, dir.revoked)

	entries, err := f.ledger.Query(ctx, store.AuditFilter{Action: "license.revoke"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "admin@saga.com", entries[0].Actor)

	_, err = f.engine.RevokeLicense(ctx, "lic-003", "erik.svensson@saga.com", "admin@saga.com")
	require.ErrorIs(t, err, store.ErrAssignmentNotFound)

	_, err = f.engine.RevokeLicense(ctx, "lic-999", "erik.svensson@saga.com", "admin@saga.com")
	require.True(t, store.IsNotFound(err))

	_, err = f.engine.RevokeLicense(ctx, "lic-001", "", "admin@saga.com")
	require.True(t, store.IsValidation(err))
}

func TestRevokeLicense_UpstreamFailureKeepsSeat(t *testing.T) {
	ctx := context.Background()
	dir := &openDirectory{failAll: true}
	f := newFixture(t, dir)

	_, err := f.engine.RevokeLicense(ctx, "lic-001", "anna.lindberg@saga.com", "admin@saga.com")
	require.ErrorIs(t, err, ErrUpstreamUnavailable)

	license, err := f.store.GetLicense(ctx, "lic-001")
	require.NoError(t, err)
	require.Equal(t, 156, license.UsedSeats)
}

func TestStats(t *testing.T) {
	f := newFixture(t, integrations.NewStubDirectory())

	stats, err := f.engine.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, &Stats{
		ActiveLicenses:       156 + 24 + 38 + 156 + 15,
		TotalLicenseSeats:    200 + 30 + 50 + 200 + 20,
		LicenseCount:         5,
		RestrictedGroupCount: 3,
		PendingRequests:      1,
		TemplateCount:        2,
		AuditLogCount:        8,
		KnowledgeDocCount:    3,
	}, stats)
}

func ptr[T any](v T) *T {
	return &v
}
