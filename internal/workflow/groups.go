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

// GroupResult is the outcome of a group access request. Request is set when
// a request was created or an existing pending one was found.
type GroupResult struct {
	Text    string                     `json:"text"`
	Action  Action                     `json:"action,omitempty"`
	Request *models.GroupAccessRequest `json:"request,omitempty"`
}

// RequestGroupAccess lists restricted groups or files a pending access request.
// Repeated calls while a request is pending return the existing request.
func (e *Engine) RequestGroupAccess(ctx context.Context, caller Caller, query, justification string) (*GroupResult, error) {
	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		pending, err := e.store.ListRequests(ctx, store.ListRequestsOptions{Status: models.RequestStatusPending})
		if err != nil {
			return nil, fmt.Errorf("failed to list pending requests: %w", err)
		}
		return &GroupResult{Text: renderGroupList(groups, pending), Action: ActionList}, nil
	}

	var group *models.RestrictedGroup
	for _, g := range groups {
		if containsFold(g.DisplayName, query) {
			group = g
			break
		}
	}
	if group == nil {
		return &GroupResult{
			Text: fmt.Sprintf("No restricted group matching \"%s\" found. Use `/qyburn-groups` to see all groups.", query),
		}, nil
	}

	return e.requestResolvedGroup(ctx, caller, group, justification)
}

// RequestGroupAccessByID files a pending request for the group with the given id.
func (e *Engine) RequestGroupAccessByID(ctx context.Context, caller Caller, groupID, justification string) (*GroupResult, error) {
	if normalizeEmail(caller.Email) == "" {
		return nil, store.Invalid("requesterEmail", "is required")
	}

	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return e.requestResolvedGroup(ctx, caller, group, justification)
}

func (e *Engine) requestResolvedGroup(ctx context.Context, caller Caller, group *models.RestrictedGroup, justification string) (*GroupResult, error) {
	caller.Email = normalizeEmail(caller.Email)

	requesterID := caller.Email
	user, err := e.lookupUser(ctx, caller.Email)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("email", caller.Email).Msg("Directory lookup failed, filing request by email")
	case user != nil:
		requesterID = user.ID
	}

	req := &models.GroupAccessRequest{
		GroupID:        group.ID,
		RequesterID:    requesterID,
		RequesterEmail: caller.Email,
		Status:         models.RequestStatusPending,
		CreatedAt:      e.now(),
	}
	if justification = strings.TrimSpace(justification); justification != "" {
		req.Justification = &justification
	}

	created, err := e.store.CreatePendingRequest(ctx, req)
	if errors.Is(err, store.ErrRequestPending) {
		return &GroupResult{
			Text: fmt.Sprintf("You already have a pending request for *%s*. :hourglass_flowing_sand:\n\nSubmitted: %s\nApprover: %s\n\nPlease wait for the approver to review your request.",
				group.DisplayName, created.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), group.ApproverEmail),
			Action:  ActionAlreadyPending,
			Request: created,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	e.record(ctx, audit.Entry{
		Actor:    models.BotActor,
		Action:   models.ActionGroupRequest,
		Target:   group.DisplayName,
		TargetID: group.ID,
		Details:  map[string]any{"requestId": created.ID, "requesterEmail": caller.Email},
		Channel:  caller.Channel,
	})
	e.notify(ctx, models.NotificationRequest, "New access request",
		fmt.Sprintf("%s requested access to %s.", caller.Email, group.DisplayName))
	telemetry.GetMetrics().RequestsSubmittedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "group")))
	e.PublishStats(ctx)

	var note string
	if group.RequiresJustification && created.Justification == nil {
		note = "\n\n:memo: *Justification required.* Please reply with your reason for needing access."
	}

	return &GroupResult{
		Text: fmt.Sprintf("Your access request for *%s* has been submitted! :envelope:\n\nApprover: %s\nGroup: %s%s",
			group.DisplayName, group.ApproverEmail, group.AzureGroupID, note),
		Action:  ActionRequested,
		Request: created,
	}, nil
}

// ReviewRequest approves or denies a pending request. Reviews are terminal:
// a second review fails with store.ErrRequestReviewed.
func (e *Engine) ReviewRequest(ctx context.Context, requestID string, decision models.RequestStatus, reviewer string) (*models.GroupAccessRequest, error) {
	reviewer = normalizeEmail(reviewer)
	if reviewer == "" {
		return nil, store.Invalid("reviewedBy", "is required")
	}

	req, err := e.store.ReviewRequest(ctx, requestID, decision, reviewer, e.now())
	if err != nil {
		return nil, err
	}

	// the group may have been deleted while its requests remain
	target := req.GroupID
	group, err := e.store.GetGroup(ctx, req.GroupID)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Warn().Err(err).Str("group_id", req.GroupID).Msg("Failed to load group for review")
		}
		group = nil
	} else {
		target = group.DisplayName
	}

	action := models.ActionGroupDeny
	notification := models.NotificationDenial
	title := "Access request denied"
	if decision == models.RequestStatusApproved {
		action = models.ActionGroupApprove
		notification = models.NotificationApproval
		title = "Access request approved"
		if group != nil {
			e.addMember(ctx, group, req)
		}
	}

	e.record(ctx, audit.Entry{
		Actor:    reviewer,
		Action:   action,
		Target:   target,
		TargetID: req.GroupID,
		Details:  map[string]any{"requestId": req.ID, "requesterId": req.RequesterID, "requesterEmail": req.RequesterEmail},
	})
	e.notify(ctx, notification, title,
		fmt.Sprintf("%s's request for %s was %s by %s.", req.RequesterEmail, target, decision, reviewer))
	telemetry.GetMetrics().RequestsReviewedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", string(decision))))
	e.PublishStats(ctx)

	return req, nil
}

// addMember grants directory membership for an approved request. The approval
// stands even if the directory call fails; the failure is logged.
func (e *Engine) addMember(ctx context.Context, group *models.RestrictedGroup, req *models.GroupAccessRequest) {
	if err := e.directory.AddUserToGroup(ctx, group.AzureGroupID, req.RequesterID); err != nil {
		log.Warn().Err(err).
			Str("group", group.AzureGroupID).
			Str("requester", req.RequesterEmail).
			Msg("Failed to add approved requester to directory group")
	}
}

var statusSymbols = map[models.RequestStatus]string{
	models.RequestStatusPending:  ":hourglass_flowing_sand:",
	models.RequestStatusApproved: ":white_check_mark:",
	models.RequestStatusDenied:   ":x:",
}

// Status renders every group access request filed by userEmail.
func (e *Engine) Status(ctx context.Context, userEmail string) (string, error) {
	requests, err := e.store.ListRequests(ctx, store.ListRequestsOptions{RequesterEmail: normalizeEmail(userEmail)})
	if err != nil {
		return "", fmt.Errorf("failed to list requests: %w", err)
	}

	if len(requests) == 0 {
		return "You have no pending or recent requests. :sparkles:\n\nNeed something? Try:\n• `/qyburn-license` — Request software\n• `/qyburn-groups` — Request group access", nil
	}

	names := make(map[string]string)
	if groups, err := e.store.ListGroups(ctx); err == nil {
		for _, g := range groups {
			names[g.ID] = g.DisplayName
		}
	}

	lines := make([]string, 0, len(requests))
	for _, r := range requests {
		symbol, ok := statusSymbols[r.Status]
		if !ok {
			symbol = ":question:"
		}
		name, ok := names[r.GroupID]
		if !ok {
			name = r.GroupID
		}
		lines = append(lines, fmt.Sprintf("%s *Group: %s* — %s (%s)", symbol, name, r.Status, r.CreatedAt.UTC().Format("2006-01-02")))
	}

	return "*Your Requests:*\n\n" + strings.Join(lines, "\n"), nil
}

func renderGroupList(groups []*models.RestrictedGroup, pending []*models.GroupAccessRequest) string {
	counts := make(map[string]int, len(groups))
	for _, r := range pending {
		counts[r.GroupID]++
	}

	entries := make([]string, 0, len(groups))
	for _, g := range groups {
		var suffix string
		if n := counts[g.ID]; n > 0 {
			suffix = fmt.Sprintf(" (%d pending)", n)
		}
		description := "No description"
		if g.Description != nil {
			description = *g.Description
		}
		entries = append(entries, fmt.Sprintf("• *%s*%s\n  %s\n  Approver: %s", g.DisplayName, suffix, description, g.ApproverEmail))
	}

	return fmt.Sprintf("*Restricted Groups (require approval):*\n\n%s\n\nTo request access: `/qyburn-groups <group name>`", strings.Join(entries, "\n\n"))
}
