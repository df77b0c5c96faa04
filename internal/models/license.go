package models

import "time"

// License is a software license pool with a fixed number of seats.
// UsedSeats never exceeds TotalSeats.
type License struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Vendor      string    `json:"vendor" yaml:"vendor"`
	SKU         *string   `json:"sku" yaml:"sku"`
	TotalSeats  int       `json:"totalSeats" yaml:"totalSeats"`
	UsedSeats   int       `json:"usedSeats" yaml:"usedSeats"`
	CostPerSeat *float64  `json:"costPerSeat" yaml:"costPerSeat"`
	AutoApprove bool      `json:"autoApprove" yaml:"autoApprove"`
	Description *string   `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// AvailableSeats returns the number of unclaimed seats.
func (l *License) AvailableSeats() int {
	return max(l.TotalSeats-l.UsedSeats, 0)
}

// IsFull returns true when every seat is claimed.
func (l *License) IsFull() bool {
	return l.UsedSeats >= l.TotalSeats
}

// LicenseAssignment records a seat handed to a user.
type LicenseAssignment struct {
	ID         string    `json:"id" yaml:"id"`
	LicenseID  string    `json:"licenseId" yaml:"licenseId"`
	UserID     string    `json:"userId" yaml:"userId"`
	UserEmail  string    `json:"userEmail" yaml:"userEmail"`
	AssignedAt time.Time `json:"assignedAt" yaml:"assignedAt"`
	AssignedBy string    `json:"assignedBy" yaml:"assignedBy"`
}
