package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

const groupColumns = `id, azure_group_id, display_name, description, approver_email, requires_justification, created_at, updated_at`

func scanGroup(row rowScanner) (*models.RestrictedGroup, error) {
	var g models.RestrictedGroup
	err := row.Scan(
		&g.ID,
		&g.AzureGroupID,
		&g.DisplayName,
		&g.Description,
		&g.ApproverEmail,
		&g.RequiresJustification,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all restricted groups in catalog order.
func (s *Store) ListGroups(ctx context.Context) ([]*models.RestrictedGroup, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+groupColumns+` FROM restricted_groups ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", mapPostgresError(err))
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.RestrictedGroup, error) {
		return scanGroup(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan groups: %w", err)
	}
	return result, nil
}

// GetGroup retrieves a restricted group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (*models.RestrictedGroup, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	g, err := scanGroup(s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM restricted_groups WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrGroupNotFound, id)
		}
		return nil, fmt.Errorf("failed to get group: %w", mapPostgresError(err))
	}
	return g, nil
}

// CreateGroup inserts a restricted group; AzureGroupID must be unique.
func (s *Store) CreateGroup(ctx context.Context, group *models.RestrictedGroup) error {
	if err := store.ValidateGroup(group); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if group.ID == "" {
		group.ID = newID()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = s.now()
	}
	if group.UpdatedAt.IsZero() {
		group.UpdatedAt = group.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO restricted_groups (`+groupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		group.ID,
		group.AzureGroupID,
		group.DisplayName,
		group.Description,
		group.ApproverEmail,
		group.RequiresJustification,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mapPostgresError(err)
		}
		return fmt.Errorf("failed to create group: %w", mapPostgresError(err))
	}

	log.Debug().Str("group_id", group.ID).Str("azure_group_id", group.AzureGroupID).Msg("Created restricted group")
	return nil
}

// UpdateGroup replaces an existing group and refreshes UpdatedAt.
func (s *Store) UpdateGroup(ctx context.Context, group *models.RestrictedGroup) error {
	if err := store.ValidateGroup(group); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	group.UpdatedAt = s.now()
	err := s.pool.QueryRow(ctx, `
		UPDATE restricted_groups
		SET azure_group_id = $2, display_name = $3, description = $4,
			approver_email = $5, requires_justification = $6, updated_at = $7
		WHERE id = $1
		RETURNING created_at
	`,
		group.ID,
		group.AzureGroupID,
		group.DisplayName,
		group.Description,
		group.ApproverEmail,
		group.RequiresJustification,
		group.UpdatedAt,
	).Scan(&group.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrGroupNotFound, group.ID)
		}
		return fmt.Errorf("failed to update group: %w", mapPostgresError(err))
	}
	return nil
}

// DeleteGroup removes a group. Its requests are left in place.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM restricted_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrGroupNotFound, id)
	}
	return nil
}
