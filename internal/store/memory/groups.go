package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

func groupID(g *models.RestrictedGroup) string { return g.ID }

// ListGroups returns all restricted groups in catalog order.
func (s *Store) ListGroups(ctx context.Context) ([]*models.RestrictedGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.RestrictedGroup, 0, len(s.groups))
	for _, g := range s.groups {
		result = append(result, cloneGroup(g))
	}
	return result, nil
}

// GetGroup retrieves a restricted group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (*models.RestrictedGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexByID(s.groups, id, groupID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrGroupNotFound, id)
	}
	return cloneGroup(s.groups[idx]), nil
}

// CreateGroup appends a restricted group; AzureGroupID must be unique.
func (s *Store) CreateGroup(ctx context.Context, group *models.RestrictedGroup) error {
	if err := store.ValidateGroup(group); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.azureGroupTaken(group.AzureGroupID, "") {
		return fmt.Errorf("%w: %s", store.ErrGroupAlreadyExists, group.AzureGroupID)
	}

	if group.ID == "" {
		group.ID = newID()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = s.now()
	}
	if group.UpdatedAt.IsZero() {
		group.UpdatedAt = group.CreatedAt
	}

	s.groups = append(s.groups, cloneGroup(group))
	return nil
}

// UpdateGroup replaces an existing group and refreshes UpdatedAt.
func (s *Store) UpdateGroup(ctx context.Context, group *models.RestrictedGroup) error {
	if err := store.ValidateGroup(group); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.groups, group.ID, groupID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrGroupNotFound, group.ID)
	}
	if s.azureGroupTaken(group.AzureGroupID, group.ID) {
		return fmt.Errorf("%w: %s", store.ErrGroupAlreadyExists, group.AzureGroupID)
	}

	group.CreatedAt = s.groups[idx].CreatedAt
	group.UpdatedAt = s.now()
	s.groups[idx] = cloneGroup(group)
	return nil
}

// DeleteGroup removes a group. Its requests are left in place.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.groups, id, groupID)
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrGroupNotFound, id)
	}
	s.groups = slices.Delete(s.groups, idx, idx+1)
	return nil
}

// azureGroupTaken must be called with the lock held.
func (s *Store) azureGroupTaken(azureGroupID, exceptID string) bool {
	return slices.ContainsFunc(s.groups, func(g *models.RestrictedGroup) bool {
		return g.AzureGroupID == azureGroupID && g.ID != exceptID
	})
}
