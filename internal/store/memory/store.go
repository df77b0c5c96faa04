package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using in-memory storage.
// A single lock serializes every mutation so read-modify-write steps such as
// seat claims and pending request creation never interleave.
// Data is lost on restart.
type Store struct {
	mu sync.RWMutex

	licenses      []*models.License           // catalog order
	assignments   []*models.LicenseAssignment // insertion order
	groups        []*models.RestrictedGroup   // catalog order
	requests      []*models.GroupAccessRequest
	audit         []*models.AuditLogEntry // newest first
	notifications []*models.Notification  // newest first
	templates     []*models.OnboardingTemplate
	documents     []*models.KnowledgeDocument

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func indexByID[T any](items []*T, id string, idOf func(*T) string) int {
	return slices.IndexFunc(items, func(item *T) bool { return idOf(item) == id })
}

func cloneLicense(l *models.License) *models.License {
	clone := *l
	clone.SKU = clonePtr(l.SKU)
	clone.CostPerSeat = clonePtr(l.CostPerSeat)
	clone.Description = clonePtr(l.Description)
	return &clone
}

func cloneGroup(g *models.RestrictedGroup) *models.RestrictedGroup {
	clone := *g
	clone.Description = clonePtr(g.Description)
	return &clone
}

func cloneRequest(r *models.GroupAccessRequest) *models.GroupAccessRequest {
	clone := *r
	clone.Justification = clonePtr(r.Justification)
	clone.ReviewedBy = clonePtr(r.ReviewedBy)
	clone.ReviewedAt = clonePtr(r.ReviewedAt)
	return &clone
}

func cloneAudit(e *models.AuditLogEntry) *models.AuditLogEntry {
	clone := *e
	clone.Target = clonePtr(e.Target)
	clone.TargetID = clonePtr(e.TargetID)
	clone.Channel = clonePtr(e.Channel)
	clone.Details = slices.Clone(e.Details)
	return &clone
}

func cloneTemplate(t *models.OnboardingTemplate) *models.OnboardingTemplate {
	clone := *t
	clone.Department = clonePtr(t.Department)
	clone.Description = clonePtr(t.Description)
	clone.Steps = make([]models.OnboardingStep, len(t.Steps))
	for i, step := range t.Steps {
		step.Description = clonePtr(step.Description)
		step.Config = slices.Clone(step.Config)
		clone.Steps[i] = step
	}
	return &clone
}

func cloneDocument(d *models.KnowledgeDocument) *models.KnowledgeDocument {
	clone := *d
	clone.Category = clonePtr(d.Category)
	clone.Tags = slices.Clone(d.Tags)
	return &clone
}
