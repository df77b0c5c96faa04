// Package seed loads the stock catalog into a store.
package seed

import (
	"cmp"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the decoded seed file.
type Catalog struct {
	Licenses      []models.License            `yaml:"licenses"`
	Assignments   []models.LicenseAssignment  `yaml:"assignments"`
	Groups        []models.RestrictedGroup    `yaml:"groups"`
	Requests      []models.GroupAccessRequest `yaml:"requests"`
	Templates     []Template                  `yaml:"templates"`
	Audit         []AuditEntry                `yaml:"audit"`
	Documents     []models.KnowledgeDocument  `yaml:"documents"`
	Notifications []Notification              `yaml:"notifications"`
}

// Template mirrors models.OnboardingTemplate with YAML step configs.
type Template struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Department  *string   `yaml:"department"`
	Description *string   `yaml:"description"`
	IsActive    bool      `yaml:"isActive"`
	CreatedAt   time.Time `yaml:"createdAt"`
	UpdatedAt   time.Time `yaml:"updatedAt"`
	Steps       []Step    `yaml:"steps"`
}

type Step struct {
	ID          string          `yaml:"id"`
	Order       int             `yaml:"order"`
	Title       string          `yaml:"title"`
	Description *string         `yaml:"description"`
	Type        models.StepType `yaml:"type"`
	Config      map[string]any  `yaml:"config"`
}

// AuditEntry mirrors models.AuditLogEntry with YAML details.
type AuditEntry struct {
	ID        string         `yaml:"id"`
	Actor     string         `yaml:"actor"`
	Action    string         `yaml:"action"`
	Target    *string        `yaml:"target"`
	TargetID  *string        `yaml:"targetId"`
	Details   map[string]any `yaml:"details"`
	Channel   *string        `yaml:"channel"`
	CreatedAt time.Time      `yaml:"createdAt"`
}

// Notification is created Age before load time.
type Notification struct {
	ID      string                  `yaml:"id"`
	Type    models.NotificationType `yaml:"type"`
	Title   string                  `yaml:"title"`
	Message string                  `yaml:"message"`
	Read    bool                    `yaml:"read"`
	Age     time.Duration           `yaml:"age"`
}

// Default returns the embedded stock catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// ReadFile parses a catalog from path.
func ReadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse seed catalog: %w", err)
	}
	return &cat, nil
}

// Load writes the catalog into st. Assignments are replayed through ClaimSeat,
// so each license is created with its assigned seats subtracted first.
// Loading into a store that already holds the catalog ids fails on the first conflict.
func Load(ctx context.Context, st store.Store, cat *Catalog, now time.Time) error {
	assigned := make(map[string]int)
	for _, a := range cat.Assignments {
		assigned[a.LicenseID]++
	}

	for _, l := range cat.Licenses {
		l.UsedSeats = max(l.UsedSeats-assigned[l.ID], 0)
		if err := st.CreateLicense(ctx, &l); err != nil {
			return fmt.Errorf("seed license %s: %w", l.ID, err)
		}
	}

	for _, a := range cat.Assignments {
		if _, err := st.ClaimSeat(ctx, &a); err != nil {
			return fmt.Errorf("seed assignment %s: %w", a.ID, err)
		}
	}

	for _, g := range cat.Groups {
		if err := st.CreateGroup(ctx, &g); err != nil {
			return fmt.Errorf("seed group %s: %w", g.ID, err)
		}
	}

	for _, r := range cat.Requests {
		status, reviewedBy, reviewedAt := r.Status, r.ReviewedBy, r.ReviewedAt
		created, err := st.CreatePendingRequest(ctx, &r)
		if err != nil {
			return fmt.Errorf("seed request %s: %w", r.ID, err)
		}
		if !status.IsTerminal() {
			continue
		}
		reviewer, at := "", now
		if reviewedBy != nil {
			reviewer = *reviewedBy
		}
		if reviewedAt != nil {
			at = *reviewedAt
		}
		if _, err := st.ReviewRequest(ctx, created.ID, status, reviewer, at); err != nil {
			return fmt.Errorf("seed review %s: %w", r.ID, err)
		}
	}

	for _, t := range cat.Templates {
		tmpl, err := t.toModel()
		if err != nil {
			return err
		}
		if err := st.CreateTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}

	// oldest first so the head of the log is the newest entry
	audit := slices.Clone(cat.Audit)
	slices.SortStableFunc(audit, func(a, b AuditEntry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	for _, e := range audit {
		entry, err := e.toModel()
		if err != nil {
			return err
		}
		if err := st.AppendAudit(ctx, entry); err != nil {
			return fmt.Errorf("seed audit %s: %w", e.ID, err)
		}
	}

	for _, d := range cat.Documents {
		if err := st.CreateDocument(ctx, &d); err != nil {
			return fmt.Errorf("seed document %s: %w", d.ID, err)
		}
	}

	notifications := slices.Clone(cat.Notifications)
	slices.SortStableFunc(notifications, func(a, b Notification) int { return cmp.Compare(b.Age, a.Age) })
	for _, n := range notifications {
		if err := st.CreateNotification(ctx, &models.Notification{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: now.Add(-n.Age),
		}); err != nil {
			return fmt.Errorf("seed notification %s: %w", n.ID, err)
		}
	}

	log.Info().
		Int("licenses", len(cat.Licenses)).
		Int("groups", len(cat.Groups)).
		Int("requests", len(cat.Requests)).
		Int("templates", len(cat.Templates)).
		Int("audit", len(cat.Audit)).
		Int("documents", len(cat.Documents)).
		Msg("Seeded catalog")
	return nil
}

// LoadIfEmpty seeds st only when it holds no licenses, so restarts against a
// persistent store keep their data.
func LoadIfEmpty(ctx context.Context, st store.Store, cat *Catalog, now time.Time) error {
	licenses, err := st.ListLicenses(ctx)
	if err != nil {
		return fmt.Errorf("failed to check store contents: %w", err)
	}
	if len(licenses) > 0 {
		log.Info().Int("licenses", len(licenses)).Msg("Store already populated, skipping seed")
		return nil
	}
	return Load(ctx, st, cat, now)
}

func (t Template) toModel() (*models.OnboardingTemplate, error) {
	tmpl := &models.OnboardingTemplate{
		ID:          t.ID,
		Name:        t.Name,
		Department:  t.Department,
		Description: t.Description,
		IsActive:    t.IsActive,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Steps:       make([]models.OnboardingStep, 0, len(t.Steps)),
	}
	for _, s := range t.Steps {
		config, err := marshalMap(s.Config)
		if err != nil {
			return nil, fmt.Errorf("seed template %s step %s: %w", t.ID, s.ID, err)
		}
		tmpl.Steps = append(tmpl.Steps, models.OnboardingStep{
			ID:          s.ID,
			TemplateID:  t.ID,
			Order:       s.Order,
			Title:       s.Title,
			Description: s.Description,
			Type:        s.Type,
			Config:      config,
			CreatedAt:   t.CreatedAt,
		})
	}
	return tmpl, nil
}

func (e AuditEntry) toModel() (*models.AuditLogEntry, error) {
	details, err := marshalMap(e.Details)
	if err != nil {
		return nil, fmt.Errorf("seed audit %s: %w", e.ID, err)
	}
	return &models.AuditLogEntry{
		ID:        e.ID,
		Actor:     e.Actor,
		Action:    e.Action,
		Target:    e.Target,
		TargetID:  e.TargetID,
		Details:   details,
		Channel:   e.Channel,
		CreatedAt: e.CreatedAt,
	}, nil
}

func marshalMap(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Join(errors.New("config is not JSON encodable"), err)
	}
	return data, nil
}
