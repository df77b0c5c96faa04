package workflow

import (
	"context"
	"fmt"

	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// Stats are the dashboard headline counters.
type Stats struct {
	ActiveLicenses       int `json:"activeLicenses"`
	TotalLicenseSeats    int `json:"totalLicenseSeats"`
	LicenseCount         int `json:"licenseCount"`
	RestrictedGroupCount int `json:"restrictedGroupCount"`
	PendingRequests      int `json:"pendingRequests"`
	TemplateCount        int `json:"templateCount"`
	AuditLogCount        int `json:"auditLogCount"`
	KnowledgeDocCount    int `json:"knowledgeDocCount"`
}

// Stats computes the dashboard counters from the store.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	licenses, err := e.store.ListLicenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	pending, err := e.store.ListRequests(ctx, store.ListRequestsOptions{Status: models.RequestStatusPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	templates, err := e.store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	auditCount, err := e.store.CountAudit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	stats := &Stats{
		LicenseCount:         len(licenses),
		RestrictedGroupCount: len(groups),
		PendingRequests:      len(pending),
		TemplateCount:        len(templates),
		AuditLogCount:        auditCount,
		KnowledgeDocCount:    len(docs),
	}
	for _, l := range licenses {
		stats.ActiveLicenses += l.UsedSeats
		stats.TotalLicenseSeats += l.TotalSeats
	}
	return stats, nil
}
