package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saga-it/qyburn/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrLicenseNotFound      = errors.New("license not found")
	ErrAssignmentNotFound   = errors.New("license assignment not found")
	ErrAlreadyAssigned      = errors.New("license already assigned to user")
	ErrNoSeatsAvailable     = errors.New("license has no seats available")
	ErrGroupNotFound        = errors.New("restricted group not found")
	ErrGroupAlreadyExists   = errors.New("restricted group already exists")
	ErrRequestNotFound      = errors.New("group access request not found")
	ErrRequestPending       = errors.New("group access request already pending")
	ErrRequestReviewed      = errors.New("group access request already reviewed")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrTemplateNotFound     = errors.New("onboarding template not found")
	ErrDocumentNotFound     = errors.New("knowledge document not found")
)

// ValidationError reports a missing or invalid field, rejected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid creates a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsNotFound reports whether err wraps any of the not found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLicenseNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrNotificationNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// LicenseStore manages the license catalog and seat accounting.
type LicenseStore interface {
	ListLicenses(ctx context.Context) ([]*models.License, error)
	GetLicense(ctx context.Context, id string) (*models.License, error)
	CreateLicense(ctx context.Context, license *models.License) error
	UpdateLicense(ctx context.Context, license *models.License) error
	DeleteLicense(ctx context.Context, id string) error

	// ClaimSeat increments UsedSeats and records the assignment in one step.
	// Returns ErrNoSeatsAvailable when the license is full and ErrAlreadyAssigned
	// when the user already holds a seat.
	ClaimSeat(ctx context.Context, assignment *models.LicenseAssignment) (*models.License, error)

	// ReleaseSeat removes the user's assignment and decrements UsedSeats.
	ReleaseSeat(ctx context.Context, licenseID, userEmail string) (*models.License, error)

	ListAssignments(ctx context.Context, licenseID string) ([]*models.LicenseAssignment, error)
}

// GroupStore manages restricted groups.
type GroupStore interface {
	ListGroups(ctx context.Context) ([]*models.RestrictedGroup, error)
	GetGroup(ctx context.Context, id string) (*models.RestrictedGroup, error)
	// CreateGroup returns ErrGroupAlreadyExists if the AzureGroupID is taken.
	CreateGroup(ctx context.Context, group *models.RestrictedGroup) error
	UpdateGroup(ctx context.Context, group *models.RestrictedGroup) error
	// DeleteGroup does not cascade to the group's requests.
	DeleteGroup(ctx context.Context, id string) error
}

// ListRequestsOptions specifies filters for listing group access requests
type ListRequestsOptions struct {
	GroupID        string               // Filter by group (empty = all)
	RequesterEmail string               // Filter by requester (empty = all)
	Status         models.RequestStatus // Filter by status (empty = all)
}

// RequestStore manages group access requests and their review transitions.
type RequestStore interface {
	ListRequests(ctx context.Context, opts ListRequestsOptions) ([]*models.GroupAccessRequest, error)
	GetRequest(ctx context.Context, id string) (*models.GroupAccessRequest, error)

	// CreatePendingRequest stores a new pending request unless the requester already
	// has one pending for the group, in which case the existing request is returned
	// together with ErrRequestPending.
	CreatePendingRequest(ctx context.Context, req *models.GroupAccessRequest) (*models.GroupAccessRequest, error)

	// ReviewRequest moves a pending request to approved or denied.
	// Returns ErrRequestReviewed if the request is no longer pending.
	ReviewRequest(ctx context.Context, id string, status models.RequestStatus, reviewer string, at time.Time) (*models.GroupAccessRequest, error)
}

// AuditFilter selects audit entries. Actor matches exactly, Action by substring.
type AuditFilter struct {
	Actor  string
	Action string
	Limit  int // 0 = no limit
}

// AuditStore is append-only: entries are never updated or deleted.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditLogEntry, error)
	CountAudit(ctx context.Context) (int, error)
}

// NotificationStore holds the administrator inbox.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context) ([]*models.Notification, error)
	// MarkNotificationRead is idempotent for existing ids.
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	CountUnread(ctx context.Context) (int, error)
}

// TemplateStore manages onboarding templates and their steps.
type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]*models.OnboardingTemplate, error)
	GetTemplate(ctx context.Context, id string) (*models.OnboardingTemplate, error)
	CreateTemplate(ctx context.Context, tmpl *models.OnboardingTemplate) error
	UpdateTemplate(ctx context.Context, tmpl *models.OnboardingTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
}

// DocumentStore manages knowledge base documents.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]*models.KnowledgeDocument, error)
	GetDocument(ctx context.Context, id string) (*models.KnowledgeDocument, error)
	CreateDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	UpdateDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	DeleteDocument(ctx context.Context, id string) error
}

// Store groups every repository. Both the memory and postgres backends implement it.
type Store interface {
	LicenseStore
	GroupStore
	RequestStore
	AuditStore
	NotificationStore
	TemplateStore
	DocumentStore
}
