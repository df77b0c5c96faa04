package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// CreateNotification inserts an unread notification at the head of the inbox.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	clone := *n
	s.notifications = slices.Insert(s.notifications, 0, &clone)
	return nil
}

// ListNotifications returns the inbox sorted newest first.
func (s *Store) ListNotifications(ctx context.Context) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		clone := *n
		result = append(result, &clone)
	}
	slices.SortStableFunc(result, func(a, b *models.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

// MarkNotificationRead marks one notification read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.notifications, func(n *models.Notification) bool { return n.ID == id })
	if idx == -1 {
		return fmt.Errorf("%w: %s", store.ErrNotificationNotFound, id)
	}
	s.notifications[idx].Read = true
	return nil
}

// MarkAllNotificationsRead marks every notification read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications {
		n.Read = true
	}
	return nil
}

// CountUnread returns the number of unread notifications.
func (s *Store) CountUnread(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
