package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// CreateNotification inserts a notification into the inbox.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, type, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, string(n.Type), n.Title, n.Message, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", mapPostgresError(err))
	}
	return nil
}

// ListNotifications returns the inbox sorted newest first.
func (s *Store) ListNotifications(ctx context.Context) ([]*models.Notification, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, title, message, read, created_at
		FROM notifications
		ORDER BY created_at DESC, seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", mapPostgresError(err))
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Notification, error) {
		var n models.Notification
		err := row.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt)
		return &n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications: %w", err)
	}
	return result, nil
}

// MarkNotificationRead marks one notification read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotificationNotFound, id)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE NOT read`); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", mapPostgresError(err))
	}
	return nil
}

// CountUnread returns the number of unread notifications.
func (s *Store) CountUnread(ctx context.Context) (int, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE NOT read`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", mapPostgresError(err))
	}
	return count, nil
}
