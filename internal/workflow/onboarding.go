package workflow

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// StepStatus is the outcome of one onboarding step.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepPending StepStatus = "pending"
	StepManual  StepStatus = "manual"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult reports what happened to a single template step.
type StepResult struct {
	StepID string          `json:"stepId"`
	Order  int             `json:"order"`
	Title  string          `json:"title"`
	Type   models.StepType `json:"type"`
	Status StepStatus      `json:"status"`
	Detail string          `json:"detail"`
}

// OnboardingReport is the result of running a template for one employee.
type OnboardingReport struct {
	TemplateID    string       `json:"templateId"`
	TemplateName  string       `json:"templateName"`
	EmployeeEmail string       `json:"employeeEmail"`
	Steps         []StepResult `json:"steps"`
}

type licenseStepConfig struct {
	LicenseID string `json:"licenseId"`
}

type groupStepConfig struct {
	GroupID string `json:"groupId"`
}

type messageStepConfig struct {
	Template string `json:"template"`
}

var welcomeMessages = map[string]string{
	"welcome_engineering": "Welcome to SAGA Diagnostics Engineering, %s! Your dev tools are being provisioned. Check the #engineering channel and the onboarding wiki to get started.",
	"welcome_lab":         "Welcome to the SAGA Diagnostics lab team, %s! Please complete your safety training before your first lab shift.",
}

const defaultWelcome = "Welcome to SAGA Diagnostics, %s! IT is setting up your accounts. Reach out in #it-support if anything is missing."

// StartOnboarding runs the steps of an active template in order for a new employee.
// Step failures are reported in the result and never stop later steps.
func (e *Engine) StartOnboarding(ctx context.Context, templateID, employeeEmail, actor string) (*OnboardingReport, error) {
	employeeEmail = normalizeEmail(employeeEmail)
	if employeeEmail == "" {
		return nil, store.Invalid("employeeEmail", "is required")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, store.Invalid("actor", "is required")
	}

	tmpl, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, store.Invalid("templateId", "template is not active")
	}

	steps := slices.Clone(tmpl.Steps)
	slices.SortStableFunc(steps, func(a, b models.OnboardingStep) int {
		return cmp.Compare(a.Order, b.Order)
	})

	e.record(ctx, audit.Entry{
		Actor:    actor,
		Action:   models.ActionOnboardingStart,
		Target:   tmpl.Name,
		TargetID: tmpl.ID,
		Details:  map[string]any{"employee": employeeEmail, "steps": len(steps)},
	})

	report := &OnboardingReport{
		TemplateID:    tmpl.ID,
		TemplateName:  tmpl.Name,
		EmployeeEmail: employeeEmail,
		Steps:         make([]StepResult, 0, len(steps)),
	}

	caller := Caller{Email: employeeEmail, Channel: e.channel}
	for _, step := range steps {
		status, detail := e.runStep(ctx, caller, tmpl, step)
		report.Steps = append(report.Steps, StepResult{
			StepID: step.ID,
			Order:  step.Order,
			Title:  step.Title,
			Type:   step.Type,
			Status: status,
			Detail: detail,
		})
	}

	e.notify(ctx, models.NotificationInfo, "Onboarding started",
		fmt.Sprintf("%s started %s for %s.", actor, tmpl.Name, employeeEmail))

	e.PublishStats(ctx)

	log.Info().Str("template", tmpl.Name).Str("employee", employeeEmail).Int("steps", len(steps)).Msg("Onboarding started")

	return report, nil
}

func (e *Engine) runStep(ctx context.Context, caller Caller, tmpl *models.OnboardingTemplate, step models.OnboardingStep) (StepStatus, string) {
	switch step.Type {
	case models.StepTypeLicense:
		var cfg licenseStepConfig
		if err := decodeStepConfig(step.Config, &cfg); err != nil || cfg.LicenseID == "" {
			return StepFailed, "step config is missing licenseId"
		}
		return e.runLicenseStep(ctx, caller, cfg.LicenseID)

	case models.StepTypeGroup:
		var cfg groupStepConfig
		if err := decodeStepConfig(step.Config, &cfg); err != nil || cfg.GroupID == "" {
			return StepFailed, "step config is missing groupId"
		}
		return e.runGroupStep(ctx, caller, tmpl, cfg.GroupID)

	case models.StepTypeMessage:
		var cfg messageStepConfig
		if err := decodeStepConfig(step.Config, &cfg); err != nil {
			return StepFailed, "step config is not valid"
		}
		return e.runMessageStep(ctx, caller, cfg.Template)

	case models.StepTypeCustom:
		detail := "to be completed by IT"
		if step.Description != nil {
			detail = *step.Description
		}
		return StepManual, detail
	}

	return StepSkipped, fmt.Sprintf("unknown step type %q", step.Type)
}

func (e *Engine) runLicenseStep(ctx context.Context, caller Caller, licenseID string) (StepStatus, string) {
	license, err := e.store.GetLicense(ctx, licenseID)
	if err != nil {
		return StepFailed, err.Error()
	}

	res, err := e.requestResolvedLicense(ctx, caller, license)
	if err != nil {
		return StepFailed, err.Error()
	}

	switch res.Action {
	case ActionAssigned:
		return StepDone, fmt.Sprintf("%s assigned", license.Name)
	case ActionPending:
		return StepPending, fmt.Sprintf("%s awaiting approval", license.Name)
	default:
		return StepFailed, fmt.Sprintf("%s %s", license.Name, strings.ReplaceAll(string(res.Action), "_", " "))
	}
}

// runGroupStep files an access request for restricted groups and adds the
// employee directly to any other directory group.
func (e *Engine) runGroupStep(ctx context.Context, caller Caller, tmpl *models.OnboardingTemplate, groupID string) (StepStatus, string) {
	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return StepFailed, err.Error()
	}
	for _, g := range groups {
		if g.ID != groupID && g.AzureGroupID != groupID {
			continue
		}
		res, err := e.requestResolvedGroup(ctx, caller, g, "Onboarding: "+tmpl.Name)
		if err != nil {
			return StepFailed, err.Error()
		}
		return StepPending, fmt.Sprintf("access to %s %s", g.DisplayName, strings.ReplaceAll(string(res.Action), "_", " "))
	}

	user, err := e.lookupUser(ctx, caller.Email)
	if err != nil {
		return StepFailed, err.Error()
	}
	if user == nil {
		return StepFailed, fmt.Sprintf("no directory account for %s", caller.Email)
	}
	if err := e.directory.AddUserToGroup(ctx, groupID, user.ID); err != nil {
		return StepFailed, errors.Join(ErrUpstreamUnavailable, err).Error()
	}
	return StepDone, fmt.Sprintf("added to %s", groupID)
}

func (e *Engine) runMessageStep(ctx context.Context, caller Caller, template string) (StepStatus, string) {
	if e.messaging == nil {
		return StepSkipped, "messaging is not configured"
	}

	format, ok := welcomeMessages[template]
	if !ok {
		format = defaultWelcome
	}
	if err := e.messaging.PostMessage(ctx, caller.Channel, fmt.Sprintf(format, caller.Email)); err != nil {
		return StepFailed, errors.Join(ErrUpstreamUnavailable, err).Error()
	}
	return StepDone, fmt.Sprintf("welcome message posted to %s", caller.Channel)
}

func decodeStepConfig(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
