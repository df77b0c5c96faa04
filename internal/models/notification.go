package models

import "time"

type NotificationType string

const (
	NotificationApproval NotificationType = "approval"
	NotificationDenial   NotificationType = "denial"
	NotificationRequest  NotificationType = "request"
	NotificationInfo     NotificationType = "info"
)

// Notification is an inbox item for dashboard administrators.
// Read only ever moves from false to true.
type Notification struct {
	ID        string           `json:"id" yaml:"id"`
	Type      NotificationType `json:"type" yaml:"type"`
	Title     string           `json:"title" yaml:"title"`
	Message   string           `json:"message" yaml:"message"`
	Read      bool             `json:"read" yaml:"read"`
	CreatedAt time.Time        `json:"createdAt" yaml:"createdAt"`
}
