package store

import (
	"strings"

	"github.com/saga-it/qyburn/internal/models"
)

// ValidateLicense checks required fields and the seat invariant.
func ValidateLicense(l *models.License) error {
	if strings.TrimSpace(l.Name) == "" {
		return Invalid("name", "is required")
	}
	if strings.TrimSpace(l.Vendor) == "" {
		return Invalid("vendor", "is required")
	}
	if l.TotalSeats < 0 {
		return Invalid("totalSeats", "must not be negative")
	}
	if l.UsedSeats < 0 || l.UsedSeats > l.TotalSeats {
		return Invalid("usedSeats", "must be between 0 and totalSeats")
	}
	return nil
}

// ValidateGroup checks required fields of a restricted group.
func ValidateGroup(g *models.RestrictedGroup) error {
	if strings.TrimSpace(g.AzureGroupID) == "" {
		return Invalid("azureGroupId", "is required")
	}
	if strings.TrimSpace(g.DisplayName) == "" {
		return Invalid("displayName", "is required")
	}
	if strings.TrimSpace(g.ApproverEmail) == "" {
		return Invalid("approverEmail", "is required")
	}
	return nil
}

// ValidateTemplate checks the template name and that each step has a known type.
func ValidateTemplate(t *models.OnboardingTemplate) error {
	if strings.TrimSpace(t.Name) == "" {
		return Invalid("name", "is required")
	}
	for _, step := range t.Steps {
		if strings.TrimSpace(step.Title) == "" {
			return Invalid("steps.title", "is required")
		}
		switch step.Type {
		case models.StepTypeLicense, models.StepTypeGroup, models.StepTypeMessage, models.StepTypeCustom:
		default:
			return Invalid("steps.type", "must be one of license, group, message, custom")
		}
	}
	return nil
}

// ValidateDocument checks required fields of a knowledge document.
func ValidateDocument(d *models.KnowledgeDocument) error {
	if strings.TrimSpace(d.Title) == "" {
		return Invalid("title", "is required")
	}
	if strings.TrimSpace(d.Content) == "" {
		return Invalid("content", "is required")
	}
	return nil
}

// ValidateAudit checks required audit fields.
func ValidateAudit(e *models.AuditLogEntry) error {
	if strings.TrimSpace(e.Actor) == "" {
		return Invalid("actor", "is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return Invalid("action", "is required")
	}
	return nil
}
