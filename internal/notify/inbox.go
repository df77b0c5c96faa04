// Package notify is the administrator's unread notification inbox.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/events"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// Inbox stores notifications and pushes each new one to live listeners.
type Inbox struct {
	store     store.NotificationStore
	publisher events.Publisher
}

// NewInbox creates an inbox. publisher may be nil.
func NewInbox(st store.NotificationStore, publisher events.Publisher) *Inbox {
	return &Inbox{store: st, publisher: publisher}
}

// Add stores an unread notification and publishes it.
func (i *Inbox) Add(ctx context.Context, typ models.NotificationType, title, message string) (*models.Notification, error) {
	n := &models.Notification{
		Type:    typ,
		Title:   title,
		Message: message,
	}
	if err := i.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	log.Debug().Str("notification_id", n.ID).Str("type", string(typ)).Msg("Added notification")

	if i.publisher != nil {
		i.publisher.Publish(events.Event{Type: events.TypeNotification, Data: n})
	}
	return n, nil
}

// List returns every notification, newest first.
func (i *Inbox) List(ctx context.Context) ([]*models.Notification, error) {
	return i.store.ListNotifications(ctx)
}

// UnreadCount returns the number of unread notifications.
func (i *Inbox) UnreadCount(ctx context.Context) (int, error) {
	return i.store.CountUnread(ctx)
}

// MarkRead is a no-op for an already read id and fails for a missing one.
func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	return i.store.MarkNotificationRead(ctx, id)
}

// MarkAllRead marks every notification read.
func (i *Inbox) MarkAllRead(ctx context.Context) error {
	return i.store.MarkAllNotificationsRead(ctx)
}
