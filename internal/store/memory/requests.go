package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

func requestID(r *models.GroupAccessRequest) string { return r.ID }

// ListRequests returns requests matching opts in creation order.
func (s *Store) ListRequests(ctx context.Context, opts store.ListRequestsOptions) ([]*models.GroupAccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.GroupAccessRequest
	for _, r := range s.requests {
		if opts.GroupID != "" && r.GroupID != opts.GroupID {
			continue
		}
		if opts.RequesterEmail != "" && r.RequesterEmail != opts.RequesterEmail {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		result = append(result, cloneRequest(r))
	}
	return result, nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*models.GroupAccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexByID(s.requests, id, requestID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrRequestNotFound, id)
	}
	return cloneRequest(s.requests[idx]), nil
}

// CreatePendingRequest stores req as pending unless one is already pending for the same requester and group.
func (s *Store) CreatePendingRequest(ctx context.Context, req *models.GroupAccessRequest) (*models.GroupAccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.requests {
		if r.GroupID == req.GroupID && r.RequesterEmail == req.RequesterEmail && r.Status == models.RequestStatusPending {
			return cloneRequest(r), fmt.Errorf("%w: %s", store.ErrRequestPending, r.ID)
		}
	}

	if req.ID == "" {
		req.ID = newID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	req.Status = models.RequestStatusPending
	req.ReviewedBy = nil
	req.ReviewedAt = nil

	s.requests = append(s.requests, cloneRequest(req))

	log.Debug().Str("request_id", req.ID).Str("group_id", req.GroupID).Str("requester", req.RequesterEmail).Msg("Created group access request")
	return cloneRequest(req), nil
}

// ReviewRequest sets the terminal status of a pending request.
func (s *Store) ReviewRequest(ctx context.Context, id string, status models.RequestStatus, reviewer string, at time.Time) (*models.GroupAccessRequest, error) {
	if !status.IsTerminal() {
		return nil, store.Invalid("status", "must be approved or denied")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.requests, id, requestID)
	if idx == -1 {
		return nil, fmt.Errorf("%w: %s", store.ErrRequestNotFound, id)
	}

	req := s.requests[idx]
	if req.Status != models.RequestStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", store.ErrRequestReviewed, id, req.Status)
	}

	req.Status = status
	req.ReviewedBy = &reviewer
	req.ReviewedAt = &at

	log.Debug().Str("request_id", id).Str("status", string(status)).Str("reviewer", reviewer).Msg("Reviewed group access request")
	return cloneRequest(req), nil
}
