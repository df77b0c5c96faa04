package models

import "time"

// RestrictedGroup is a directory group whose membership requires approval.
type RestrictedGroup struct {
	ID                    string    `json:"id" yaml:"id"`
	AzureGroupID          string    `json:"azureGroupId" yaml:"azureGroupId"`
	DisplayName           string    `json:"displayName" yaml:"displayName"`
	Description           *string   `json:"description" yaml:"description"`
	ApproverEmail         string    `json:"approverEmail" yaml:"approverEmail"`
	RequiresJustification bool      `json:"requiresJustification" yaml:"requiresJustification"`
	CreatedAt             time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// RequestStatus is the review state of a group access request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
)

// IsTerminal returns true for statuses that can no longer change.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusDenied
}

// GroupAccessRequest asks for membership of a RestrictedGroup.
// At most one pending request exists per (GroupID, RequesterEmail).
type GroupAccessRequest struct {
	ID             string        `json:"id" yaml:"id"`
	GroupID        string        `json:"groupId" yaml:"groupId"`
	RequesterID    string        `json:"requesterId" yaml:"requesterId"`
	RequesterEmail string        `json:"requesterEmail" yaml:"requesterEmail"`
	Justification  *string       `json:"justification" yaml:"justification"`
	Status         RequestStatus `json:"status" yaml:"status"`
	ReviewedBy     *string       `json:"reviewedBy" yaml:"reviewedBy"`
	ReviewedAt     *time.Time    `json:"reviewedAt" yaml:"reviewedAt"`
	CreatedAt      time.Time     `json:"createdAt" yaml:"createdAt"`
}
