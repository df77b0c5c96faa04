package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

// AppendAudit inserts an entry at the head of the log.
func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := store.ValidateAudit(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	s.audit = slices.Insert(s.audit, 0, cloneAudit(entry))
	return nil
}

// ListAudit filters by exact actor and action substring, sorts newest first, then applies the limit.
func (s *Store) ListAudit(ctx context.Context, filter store.AuditFilter) ([]*models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.AuditLogEntry, 0, len(s.audit))
	for _, e := range s.audit {
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && !strings.Contains(e.Action, filter.Action) {
			continue
		}
		result = append(result, cloneAudit(e))
	}

	// stable so entries sharing a timestamp keep head-insertion order
	slices.SortStableFunc(result, func(a, b *models.AuditLogEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// CountAudit returns the number of entries in the log.
func (s *Store) CountAudit(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audit), nil
}
