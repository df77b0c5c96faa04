package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/saga-it/qyburn/internal/audit"
	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
)

type appendAuditBody struct {
	Actor    string          `json:"actor"`
	Action   string          `json:"action"`
	Target   string          `json:"target"`
	TargetID string          `json:"targetId"`
	Details  json.RawMessage `json:"details"`
	Channel  string          `json:"channel"`
}

type notificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

type markNotificationsBody struct {
	ID          string `json:"id"`
	MarkAllRead bool   `json:"markAllRead"`
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.AuditFilter{
		Actor:  query.Get("actor"),
		Action: query.Get("action"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, store.Invalid("limit", "must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	entries, err := s.ledger.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditLogEntry{}
	}
	writeJSON(w, r, http.StatusOK, entries)
}

func (s *Server) appendAudit(w http.ResponseWriter, r *http.Request) {
	var body appendAuditBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	entry := audit.Entry{
		Actor:    body.Actor,
		Action:   body.Action,
		Target:   body.Target,
		TargetID: body.TargetID,
		Channel:  body.Channel,
	}
	if len(body.Details) > 0 && !bytes.Equal(body.Details, []byte("null")) {
		entry.Details = body.Details
	}

	record, err := s.ledger.Append(r.Context(), entry)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.engine.PublishStats(r.Context())
	writeJSON(w, r, http.StatusCreated, record)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.inbox.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	unread, err := s.inbox.UnreadCount(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, r, http.StatusOK, notificationsResponse{Notifications: notifications, UnreadCount: unread})
}

func (s *Server) markNotifications(w http.ResponseWriter, r *http.Request) {
	var body markNotificationsBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	var err error
	switch {
	case body.MarkAllRead:
		err = s.inbox.MarkAllRead(r.Context())
	case body.ID != "":
		err = s.inbox.MarkRead(r.Context(), body.ID)
	default:
		err = store.Invalid("body", "either id or markAllRead is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}
