package models

import (
	"encoding/json"
	"time"
)

// StepType selects how an onboarding step is executed and how its Config is decoded.
type StepType string

const (
	StepTypeLicense StepType = "license" // config: {"licenseId": "..."}
	StepTypeGroup   StepType = "group"   // config: {"groupId": "..."}
	StepTypeMessage StepType = "message" // config: {"template": "..."}
	StepTypeCustom  StepType = "custom"  // config: free-form, completed by a human
)

// OnboardingTemplate is an ordered checklist applied to new employees.
type OnboardingTemplate struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Department  *string          `json:"department" yaml:"department"`
	Description *string          `json:"description" yaml:"description"`
	IsActive    bool             `json:"isActive" yaml:"isActive"`
	CreatedAt   time.Time        `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt" yaml:"updatedAt"`
	Steps       []OnboardingStep `json:"steps" yaml:"steps"`
}

type OnboardingStep struct {
	ID          string          `json:"id" yaml:"id"`
	TemplateID  string          `json:"templateId" yaml:"templateId"`
	Order       int             `json:"order" yaml:"order"`
	Title       string          `json:"title" yaml:"title"`
	Description *string         `json:"description" yaml:"description"`
	Type        StepType        `json:"type" yaml:"type"`
	Config      json.RawMessage `json:"config" yaml:"-"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"createdAt"`
}
