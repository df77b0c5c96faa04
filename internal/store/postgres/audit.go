package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// AppendAudit inserts an entry into the append-only audit log.
func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := store.ValidateAudit(entry); err != nil {
		return err
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, actor, action, target, target_id, details, channel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID,
		entry.Actor,
		entry.Action,
		entry.Target,
		entry.TargetID,
		jsonParam(entry.Details),
		entry.Channel,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", mapPostgresError(err))
	}
	return nil
}

// ListAudit filters by exact actor and action substring, newest first, then applies the limit.
func (s *Store) ListAudit(ctx context.Context, filter store.AuditFilter) ([]*models.AuditLogEntry, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	query := `
		SELECT id, actor, action, target, target_id, details, channel, created_at
		FROM audit_logs
		WHERE ($1 = '' OR actor = $1)
			AND ($2 = '' OR strpos(action, $2) > 0)
		ORDER BY created_at DESC, seq DESC
	`
	args := []any{filter.Actor, filter.Action}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", mapPostgresError(err))
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.AuditLogEntry, error) {
		var (
			e       models.AuditLogEntry
			details []byte
		)
		if err := row.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &e.TargetID, &details, &e.Channel, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = details
		return &e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entries: %w", err)
	}
	return result, nil
}

// CountAudit returns the number of entries in the log.
func (s *Store) CountAudit(ctx context.Context) (int, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", mapPostgresError(err))
	}
	return count, nil
}
