package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/saga-it/qyburn/internal/integrations"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/stretchr/testify/require"
)

func TestStartOnboarding_EngineeringNewHire(t *testing.T) {
	ctx := context.Background()
	dir := &openDirectory{}
	f := newFixture(t, dir)

	report, err := f.engine.StartOnboarding(ctx, "ot-001", "new.hire@saga.com", "admin@saga.com")
	require.NoError(t, err)
	require.Equal(t, "Engineering New Hire", report.TemplateName)
	require.Len(t, report.Steps, 4)

	statuses := make([]StepStatus, 0, len(report.Steps))
	for _, step := range report.Steps {
		statuses = append(statuses, step.Status)
	}
	require.Equal(t, []StepStatus{StepDone, StepDone, StepDone, StepDone}, statuses)
	require.Equal(t, 1, report.Steps[0].Order)
	require.Equal(t, models.StepTypeMessage, report.Steps[3].Type)

	require.ElementsMatch(t, []string{"id-new.hire@saga.com:M365-E3", "id-new.hire@saga.com:JB-ALL"}, dir.assigned)
	require.Equal(t, []string{"id-new.hire@saga.com"}, dir.memberships["group-003"])

	msgs := f.messaging.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, DefaultChannel, msgs[0].Channel)
	require.Contains(t, msgs[0].Text, "new.hire@saga.com")

	entries, err := f.ledger.Query(ctx, store.AuditFilter{Action: "onboarding.start", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, "admin@saga.com", entries[0].Actor)
	require.Equal(t, "ot-001", *entries[0].TargetID)

	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Details, &details))
	require.Equal(t, "new.hire@saga.com", details["employee"])
}

func TestStartOnboarding_UnknownEmployee(t *testing.T) {
	f := newFixture(t, integrations.NewStubDirectory())

	report, err := f.engine.StartOnboarding(context.Background(), "ot-002", "not.yet.created@saga.com", "admin@saga.com")
	require.NoError(t, err)
	require.Len(t, report.Steps, 3)

	require.Equal(t, StepFailed, report.Steps[0].Status)
	require.Contains(t, report.Steps[0].Detail, "assignment failed")
	require.Equal(t, StepFailed, report.Steps[1].Status)
	require.Equal(t, StepManual, report.Steps[2].Status)
	require.Equal(t, "Must complete before lab access is granted", report.Steps[2].Detail)
}

func TestStartOnboarding_RestrictedGroupStepFilesRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &openDirectory{})

	require.NoError(t, f.store.CreateTemplate(ctx, &models.OnboardingTemplate{
		ID:       "ot-100",
		Name:     "Finance Analyst",
		IsActive: true,
		Steps: []models.OnboardingStep{
			{ID: "s-2", Order: 2, Title: "Welcome", Type: models.StepTypeMessage, Config: json.RawMessage(`{"template":"unknown"}`)},
			{ID: "s-1", Order: 1, Title: "Finance data", Type: models.StepTypeGroup, Config: json.RawMessage(`{"groupId":"group-finance"}`)},
			{ID: "s-3", Order: 3, Title: "Broken", Type: models.StepTypeLicense, Config: json.RawMessage(`{}`)},
		},
	}))

	report, err := f.engine.StartOnboarding(ctx, "ot-100", "analyst@saga.com", "cfo@saga.com")
	require.NoError(t, err)
	require.Equal(t, "s-1", report.Steps[0].StepID)
	require.Equal(t, StepPending, report.Steps[0].Status)
	require.Equal(t, "access to SG-Finance-Sensitive requested", report.Steps[0].Detail)
	require.Equal(t, StepDone, report.Steps[1].Status)
	require.Equal(t, StepFailed, report.Steps[2].Status)

	pending, err := f.store.ListRequests(ctx, store.ListRequestsOptions{RequesterEmail: "analyst@saga.com"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "Onboarding: Finance Analyst", *pending[0].Justification)

	msgs := f.messaging.Messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Text, "Welcome to SAGA Diagnostics, analyst@saga.com!")
}

func TestStartOnboarding_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, integrations.NewStubDirectory())

	_, err := f.engine.StartOnboarding(ctx, "ot-404", "x@saga.com", "admin@saga.com")
	require.True(t, store.IsNotFound(err))

	_, err = f.engine.StartOnboarding(ctx, "ot-001", "", "admin@saga.com")
	require.True(t, store.IsValidation(err))

	tmpl, err := f.store.GetTemplate(ctx, "ot-002")
	require.NoError(t, err)
	tmpl.IsActive = false
	require.NoError(t, f.store.UpdateTemplate(ctx, tmpl))

	_, err = f.engine.StartOnboarding(ctx, "ot-002", "x@saga.com", "admin@saga.com")
	require.True(t, store.IsValidation(err))
}

func TestStartOnboarding_WithoutMessaging(t *testing.T) {
	f := newFixture(t, &openDirectory{})
	f.engine.messaging = nil

	report, err := f.engine.StartOnboarding(context.Background(), "ot-001", "new.hire@saga.com", "admin@saga.com")
	require.NoError(t, err)
	require.Equal(t, StepSkipped, report.Steps[3].Status)
}
