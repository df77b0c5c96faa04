package models

import (
	"encoding/json"
	"time"
)

// BotActor is the actor recorded for actions taken by the bot itself.
const BotActor = "qyburn-bot"

// Audit actions. Filters match on substrings so "license" selects the whole namespace.
const (
	ActionLicenseAssign   = "license.assign"
	ActionLicenseRequest  = "license.request"
	ActionLicenseRevoke   = "license.revoke"
	ActionGroupRequest    = "group.request"
	ActionGroupApprove    = "group.approve"
	ActionGroupDeny       = "group.deny"
	ActionKBQuery         = "kb.query"
	ActionOnboardingStart = "onboarding.start"
)

// AuditLogEntry is an immutable record of an actor-attributed action.
type AuditLogEntry struct {
	ID        string          `json:"id" yaml:"id"`
	Actor     string          `json:"actor" yaml:"actor"`
	Action    string          `json:"action" yaml:"action"`
	Target    *string         `json:"target" yaml:"target"`
	TargetID  *string         `json:"targetId" yaml:"targetId"`
	Details   json.RawMessage `json:"details" yaml:"-"`
	Channel   *string         `json:"channel" yaml:"channel"`
	CreatedAt time.Time       `json:"createdAt" yaml:"createdAt"`
}
