package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

const requestColumns = `id, group_id, requester_id, requester_email, justification, status, reviewed_by, reviewed_at, created_at`

func scanRequest(row rowScanner) (*models.GroupAccessRequest, error) {
	var r models.GroupAccessRequest
	err := row.Scan(
		&r.ID,
		&r.GroupID,
		&r.RequesterID,
		&r.RequesterEmail,
		&r.Justification,
		&r.Status,
		&r.ReviewedBy,
		&r.ReviewedAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequests returns requests matching opts in creation order.
func (s *Store) ListRequests(ctx context.Context, opts store.ListRequestsOptions) ([]*models.GroupAccessRequest, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM group_access_requests
		WHERE ($1 = '' OR group_id = $1)
			AND ($2 = '' OR requester_email = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY seq
	`, opts.GroupID, opts.RequesterEmail, string(opts.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", mapPostgresError(err))
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.GroupAccessRequest, error) {
		return scanRequest(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan requests: %w", err)
	}
	return result, nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*models.GroupAccessRequest, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	r, err := scanRequest(s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM group_access_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrRequestNotFound, id)
		}
		return nil, fmt.Errorf("failed to get request: %w", mapPostgresError(err))
	}
	return r, nil
}

// CreatePendingRequest inserts a pending request. The partial unique index on
// (group_id, requester_email) WHERE status = 'pending' rejects duplicates, in
// which case the existing pending request is returned with ErrRequestPending.
func (s *Store) CreatePendingRequest(ctx context.Context, req *models.GroupAccessRequest) (*models.GroupAccessRequest, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if req.ID == "" {
		req.ID = newID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	req.Status = models.RequestStatusPending
	req.ReviewedBy = nil
	req.ReviewedAt = nil

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO group_access_requests (id, group_id, requester_id, requester_email, justification, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (group_id, requester_email) WHERE status = 'pending' DO NOTHING
	`, req.ID, req.GroupID, req.RequesterID, req.RequesterEmail, req.Justification, string(req.Status), req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 0 {
		existing, err := scanRequest(s.pool.QueryRow(ctx, `
			SELECT `+requestColumns+`
			FROM group_access_requests
			WHERE group_id = $1 AND requester_email = $2 AND status = 'pending'
		`, req.GroupID, req.RequesterEmail))
		if err != nil {
			return nil, fmt.Errorf("failed to load pending request: %w", mapPostgresError(err))
		}
		return existing, fmt.Errorf("%w: %s", store.ErrRequestPending, existing.ID)
	}

	log.Debug().Str("request_id", req.ID).Str("group_id", req.GroupID).Str("requester", req.RequesterEmail).Msg("Created group access request")

	created := *req
	return &created, nil
}

// ReviewRequest sets the terminal status of a pending request. The status
// guard in the UPDATE makes the transition happen at most once.
func (s *Store) ReviewRequest(ctx context.Context, id string, status models.RequestStatus, reviewer string, at time.Time) (*models.GroupAccessRequest, error) {
	if !status.IsTerminal() {
		return nil, store.Invalid("status", "must be approved or denied")
	}

	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	r, err := scanRequest(s.pool.QueryRow(ctx, `
		UPDATE group_access_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns, id, string(status), reviewer, at))
	if err == nil {
		log.Debug().Str("request_id", id).Str("status", string(status)).Str("reviewer", reviewer).Msg("Reviewed group access request")
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to review request: %w", mapPostgresError(err))
	}

	// nothing updated: either missing or already decided
	current, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s is %s", store.ErrRequestReviewed, id, current.Status)
}
