package integrations

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/util"
)

// ErrNotFound is returned when a directory object referenced by a mutation does not exist.
var ErrNotFound = errors.New("directory object not found")

// User is a directory identity.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Mail        string  `json:"mail"`
	JobTitle    *string `json:"jobTitle"`
	Department  *string `json:"department"`
}

// Directory is the identity provider the workflow engine provisions against.
type Directory interface {
	// GetUserByEmail returns nil without an error when no user has the address.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	AssignLicense(ctx context.Context, userID, sku string) error
	RevokeLicense(ctx context.Context, userID, sku string) error
	AddUserToGroup(ctx context.Context, groupID, userID string) error
}

type stubGroup struct {
	ID          string
	DisplayName string
	Members     []string
}

// StubDirectory is an in-process directory with a fixed set of users and groups.
type StubDirectory struct {
	mu     sync.Mutex
	users  []User
	groups []*stubGroup
}

var _ Directory = (*StubDirectory)(nil)

// NewStubDirectory returns a directory seeded with the demo employees.
func NewStubDirectory() *StubDirectory {
	return &StubDirectory{
		users: []User{
			{ID: "user-001", DisplayName: "Anna Lindberg", Mail: "anna.lindberg@saga.com", JobTitle: util.Ptr("Lab Technician"), Department: util.Ptr("Diagnostics")},
			{ID: "user-002", DisplayName: "Erik Svensson", Mail: "erik.svensson@saga.com", JobTitle: util.Ptr("Software Engineer"), Department: util.Ptr("Engineering")},
			{ID: "user-003", DisplayName: "Maria Chen", Mail: "maria.chen@saga.com", JobTitle: util.Ptr("Project Manager"), Department: util.Ptr("Operations")},
			{ID: "user-004", DisplayName: "James Patel", Mail: "james.patel@saga.com", JobTitle: util.Ptr("Data Scientist"), Department: util.Ptr("R&D")},
		},
		groups: []*stubGroup{
			{ID: "group-001", DisplayName: "SG-Engineering-Admin", Members: []string{"user-002"}},
			{ID: "group-002", DisplayName: "SG-Lab-Users", Members: []string{"user-001"}},
			{ID: "group-003", DisplayName: "SG-VPN-Users", Members: []string{"user-002", "user-003"}},
		},
	}
}

func (d *StubDirectory) GetUserByEmail(_ context.Context, email string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, u := range d.users {
		if strings.EqualFold(u.Mail, email) {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (d *StubDirectory) AssignLicense(_ context.Context, userID, sku string) error {
	log.Info().Str("user_id", userID).Str("sku", sku).Msg("stub directory assigned license")
	return nil
}

func (d *StubDirectory) RevokeLicense(_ context.Context, userID, sku string) error {
	log.Info().Str("user_id", userID).Str("sku", sku).Msg("stub directory revoked license")
	return nil
}

func (d *StubDirectory) AddUserToGroup(_ context.Context, groupID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, g := range d.groups {
		if g.ID != groupID {
			continue
		}
		if !slices.Contains(g.Members, userID) {
			g.Members = append(g.Members, userID)
		}
		return nil
	}
	return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
}

// GroupMembers returns the member ids of a stub group, or nil if it does not exist.
func (d *StubDirectory) GroupMembers(groupID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, g := range d.groups {
		if g.ID == groupID {
			return slices.Clone(g.Members)
		}
	}
	return nil
}
