package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/saga-it/qyburn/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LicenseResult is the outcome of a license request.
type LicenseResult struct {
	Text        string `json:"text"`
	Action      Action `json:"action"`
	LicenseName string `json:"licenseName,omitempty"`
}

// RequestLicense resolves query against the catalog and either lists licenses,
// auto-provisions a seat, or records the request for manual approval.
func (e *Engine) RequestLicense(ctx context.Context, caller Caller, query string) (*LicenseResult, error) {
	licenses, err := e.store.ListLicenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return &LicenseResult{Text: renderLicenseList(licenses), Action: ActionList}, nil
	}

	var license *models.License
	for _, l := range licenses {
		if containsFold(l.Name, query) || containsFold(l.Vendor, query) {
			license = l
			break
		}
	}
	if license == nil {
		return &LicenseResult{
			Text:   fmt.Sprintf("I couldn't find a license matching \"%s\" in our catalog. Use `/qyburn-license` to see all available licenses.", query),
			Action: ActionUnavailable,
		}, nil
	}

	return e.requestResolvedLicense(ctx, caller, license)
}

func (e *Engine) requestResolvedLicense(ctx context.Context, caller Caller, license *models.License) (*LicenseResult, error) {
	caller.Email = normalizeEmail(caller.Email)

	if license.IsFull() {
		e.notifyCapacity(ctx, caller, license)
		return fullCapacity(license), nil
	}

	if !license.AutoApprove {
		return e.queueLicense(ctx, caller, license), nil
	}

	return e.assignLicense(ctx, caller, license)
}

func fullCapacity(license *models.License) *LicenseResult {
	return &LicenseResult{
		Text:        fmt.Sprintf("Sorry, *%s* is currently at full capacity (%d/%d seats). I've notified IT admin about the shortage.", license.Name, license.TotalSeats, license.TotalSeats),
		Action:      ActionUnavailable,
		LicenseName: license.Name,
	}
}

func (e *Engine) notifyCapacity(ctx context.Context, caller Caller, license *models.License) {
	e.notify(ctx, models.NotificationInfo, "License at capacity",
		fmt.Sprintf("%s requested %s but all %d seats are in use.", caller.Email, license.Name, license.TotalSeats))
}

// queueLicense handles licenses that need a human decision. No seat is claimed.
func (e *Engine) queueLicense(ctx context.Context, caller Caller, license *models.License) *LicenseResult {
	cost := "N/A"
	if license.CostPerSeat != nil {
		cost = fmt.Sprintf("%.2f", *license.CostPerSeat)
	}

	e.record(ctx, audit.Entry{
		Actor:    models.BotActor,
		Action:   models.ActionLicenseRequest,
		Target:   license.Name,
		TargetID: license.ID,
		Details:  map[string]any{"email": caller.Email, "status": "pending"},
		Channel:  caller.Channel,
	})
	e.notify(ctx, models.NotificationRequest, "License request",
		fmt.Sprintf("%s requested %s (requires approval).", caller.Email, license.Name))

	telemetry.GetMetrics().RequestsSubmittedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "license")))
	e.PublishStats(ctx)

	return &LicenseResult{
		Text:        fmt.Sprintf("Your request for *%s* has been submitted for approval. :hourglass_flowing_sand:\n\nThis license requires manager approval. You'll be notified once it's reviewed.\n\nCost: $%s/month per seat", license.Name, cost),
		Action:      ActionPending,
		LicenseName: license.Name,
	}
}

// assignLicense claims a seat before calling the directory and releases it again
// if provisioning fails, so UsedSeats only counts seats that were really handed out.
func (e *Engine) assignLicense(ctx context.Context, caller Caller, license *models.License) (*LicenseResult, error) {
	user, err := e.lookupUser(ctx, caller.Email)
	if err != nil {
		log.Warn().Err(err).Str("email", caller.Email).Msg("Directory lookup failed")
		return e.assignmentFailed(ctx, caller, license, err), nil
	}
	if user == nil {
		return e.assignmentFailed(ctx, caller, license, fmt.Errorf("no directory account for %s", caller.Email)), nil
	}

	_, err = e.store.ClaimSeat(ctx, &models.LicenseAssignment{
		LicenseID:  license.ID,
		UserID:     user.ID,
		UserEmail:  caller.Email,
		AssignedAt: e.now(),
		AssignedBy: models.BotActor,
	})
	switch {
	case errors.Is(err, store.ErrNoSeatsAvailable):
		e.notifyCapacity(ctx, caller, license)
		return fullCapacity(license), nil
	case errors.Is(err, store.ErrAlreadyAssigned):
		return &LicenseResult{
			Text:        fmt.Sprintf("You already have a *%s* seat. :white_check_mark:\n\nDetails:\n• Vendor: %s\n• SKU: %s", license.Name, license.Vendor, skuOrNA(license)),
			Action:      ActionAssigned,
			LicenseName: license.Name,
		}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to claim seat on %s: %w", license.ID, err)
	}

	if license.SKU != nil && *license.SKU != "" {
		if err := e.directory.AssignLicense(ctx, user.ID, *license.SKU); err != nil {
			if _, rerr := e.store.ReleaseSeat(ctx, license.ID, caller.Email); rerr != nil {
				log.Error().Err(rerr).Str("license_id", license.ID).Str("email", caller.Email).Msg("Failed to release seat after provisioning failure")
			}
			return e.assignmentFailed(ctx, caller, license, errors.Join(ErrUpstreamUnavailable, err)), nil
		}
	}

	e.record(ctx, audit.Entry{
		Actor:    models.BotActor,
		Action:   models.ActionLicenseAssign,
		Target:   license.Name,
		TargetID: license.ID,
		Details:  map[string]any{"userId": user.ID, "email": caller.Email, "sku": skuOrNA(license)},
		Channel:  caller.Channel,
	})
	telemetry.GetMetrics().LicensesAssignedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("license", license.Name)))
	e.PublishStats(ctx)

	log.Info().Str("license", license.Name).Str("email", caller.Email).Msg("License auto-provisioned")

	return &LicenseResult{
		Text:        fmt.Sprintf("*%s* has been auto-provisioned for you! :white_check_mark:\n\nDetails:\n• Vendor: %s\n• SKU: %s\n\nThe license should be active within a few minutes.", license.Name, license.Vendor, skuOrNA(license)),
		Action:      ActionAssigned,
		LicenseName: license.Name,
	}, nil
}

func (e *Engine) assignmentFailed(ctx context.Context, caller Caller, license *models.License, cause error) *LicenseResult {
	log.Warn().Err(cause).Str("license", license.Name).Str("email", caller.Email).Msg("License assignment failed")

	telemetry.GetMetrics().AssignmentFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("license", license.Name)))
	e.notify(ctx, models.NotificationInfo, "License assignment failed",
		fmt.Sprintf("Could not provision %s for %s. Manual follow-up needed.", license.Name, caller.Email))

	return &LicenseResult{
		Text:        fmt.Sprintf("I couldn't provision *%s* for you right now. :warning:\n\nIT admin has been notified and will follow up. No seat has been used.", license.Name),
		Action:      ActionAssignmentFailed,
		LicenseName: license.Name,
	}
}

// RevokeLicense removes a user's seat in the directory and then in the store.
func (e *Engine) RevokeLicense(ctx context.Context, licenseID, userEmail, actor string) (*models.License, error) {
	userEmail = normalizeEmail(userEmail)
	if userEmail == "" {
		return nil, store.Invalid("userEmail", "is required")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, store.Invalid("actor", "is required")
	}

	license, err := e.store.GetLicense(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	assignments, err := e.store.ListAssignments(ctx, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	var assignment *models.LicenseAssignment
	for _, a := range assignments {
		if strings.EqualFold(a.UserEmail, userEmail) {
			assignment = a
			break
		}
	}
	if assignment == nil {
		return nil, fmt.Errorf("%w: %s on %s", store.ErrAssignmentNotFound, userEmail, licenseID)
	}

	if license.SKU != nil && *license.SKU != "" {
		if err := e.directory.RevokeLicense(ctx, assignment.UserID, *license.SKU); err != nil {
			return nil, errors.Join(ErrUpstreamUnavailable, err)
		}
	}

	updated, err := e.store.ReleaseSeat(ctx, licenseID, userEmail)
	if err != nil {
		return nil, err
	}

	e.record(ctx, audit.Entry{
		Actor:    actor,
		Action:   models.ActionLicenseRevoke,
		Target:   license.Name,
		TargetID: license.ID,
		Details:  map[string]any{"userId": assignment.UserID, "email": userEmail},
	})
	e.PublishStats(ctx)

	return updated, nil
}

func renderLicenseList(licenses []*models.License) string {
	lines := make([]string, 0, len(licenses))
	for _, l := range licenses {
		status := "FULL"
		if available := l.AvailableSeats(); available > 0 {
			status = fmt.Sprintf("%d seats available", available)
		}
		approval := "requires approval"
		if l.AutoApprove {
			approval = "auto-approve"
		}
		lines = append(lines, fmt.Sprintf("• *%s* (%s) — %s, %s", l.Name, l.Vendor, status, approval))
	}

	return fmt.Sprintf("*Available Software Licenses:*\n\n%s\n\nUse `/qyburn-license <software name>` to request a specific license.", strings.Join(lines, "\n"))
}

func skuOrNA(l *models.License) string {
	if l.SKU == nil || *l.SKU == "" {
		return "N/A"
	}
	return *l.SKU
}
