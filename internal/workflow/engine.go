// Package workflow implements the license and group access request state machine.
//
// The Engine owns the approval rules: when a license request is auto-provisioned
// or queued, how pending group requests are deduplicated and how reviews reach a
// terminal state. Every mutation is audited, pushed to the administrator inbox
// and followed by a stats event so dashboards stay in sync with bot activity.
package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/integrations"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/notify"
	"github.com/saga-it/qyburn/internal/store"
)

// ErrUpstreamUnavailable wraps failures of the directory or messaging collaborators.
var ErrUpstreamUnavailable = errors.New("upstream service unavailable")

// DefaultChannel is where onboarding messages are posted when no channel is configured.
const DefaultChannel = "#it-support"

// Action tags the outcome of a workflow call.
type Action string

const (
	ActionNone             Action = ""
	ActionList             Action = "list"
	ActionUnavailable      Action = "unavailable"
	ActionAssigned         Action = "assigned"
	ActionPending          Action = "pending"
	ActionAssignmentFailed Action = "assignment_failed"
	ActionRequested        Action = "requested"
	ActionAlreadyPending   Action = "already_pending"
)

// Caller identifies who triggered a workflow and where.
type Caller struct {
	Email   string
	Channel string
}

// Engine runs request workflows against a store and the directory.
type Engine struct {
	store     store.Store
	directory integrations.Directory
	messaging integrations.Messaging
	ledger    *audit.Ledger
	inbox     *notify.Inbox
	publisher events.Publisher
	channel   string
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMessaging enables message steps in onboarding templates.
func WithMessaging(m integrations.Messaging) Option {
	return func(e *Engine) {
		e.messaging = m
	}
}

// WithChannel sets the channel used for onboarding messages.
func WithChannel(channel string) Option {
	return func(e *Engine) {
		e.channel = channel
	}
}

// WithClock overrides the time source used for review timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine. The ledger and inbox should share the publisher
// so audit and notification events reach the same subscribers as stats events.
func NewEngine(st store.Store, directory integrations.Directory, ledger *audit.Ledger, inbox *notify.Inbox, publisher events.Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		directory: directory,
		ledger:    ledger,
		inbox:     inbox,
		publisher: publisher,
		channel:   DefaultChannel,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// record appends an audit entry. Audit failures are logged, the workflow outcome stands.
func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if _, err := e.ledger.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", entry.Action).Msg("Failed to append audit entry")
	}
}

// notify adds an inbox item. Failures are logged only.
func (e *Engine) notify(ctx context.Context, typ models.NotificationType, title, message string) {
	if _, err := e.inbox.Add(ctx, typ, title, message); err != nil {
		log.Error().Err(err).Str("title", title).Msg("Failed to add notification")
	}
}

// PublishStats pushes fresh dashboard counters. Called after every mutation.
func (e *Engine) PublishStats(ctx context.Context) {
	stats, err := e.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to compute dashboard stats")
		return
	}
	e.publisher.Publish(events.Event{Type: events.TypeStats, Data: stats})
}

// lookupUser resolves a directory identity, wrapping collaborator failures.
func (e *Engine) lookupUser(ctx context.Context, email string) (*integrations.User, error) {
	user, err := e.directory.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, errors.Join(ErrUpstreamUnavailable, err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
