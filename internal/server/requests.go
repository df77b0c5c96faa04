package server

import (
	"net/http"

	"github.com/saga-it/qyburn/internal/models"
	"github.com/saga-it/qyburn/internal/store"
	"github.com/saga-it/qyburn/internal/workflow"
)

type createRequestBody struct {
	GroupID        string `json:"groupId"`
	RequesterEmail string `json:"requesterEmail"`
	Justification  string `json:"justification"`
	Channel        string `json:"channel"`
}

type reviewRequestBody struct {
	ID         string               `json:"id"`
	Status     models.RequestStatus `json:"status"`
	ReviewedBy string               `json:"reviewedBy"`
}

type revokeLicenseBody struct {
	UserEmail string `json:"userEmail"`
	Actor     string `json:"actor"`
}

type startOnboardingBody struct {
	EmployeeEmail string `json:"employeeEmail"`
	Actor         string `json:"actor"`
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	requests, err := s.store.ListRequests(r.Context(), store.ListRequestsOptions{
		GroupID:        query.Get("groupId"),
		RequesterEmail: query.Get("requesterEmail"),
		Status:         models.RequestStatus(query.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if requests == nil {
		requests = []*models.GroupAccessRequest{}
	}
	writeJSON(w, r, http.StatusOK, requests)
}

// createRequest files a group access request through the workflow, so the
// pending request dedup and audit trail match the bot surface.
func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	caller := workflow.Caller{Email: body.RequesterEmail, Channel: body.Channel}
	res, err := s.engine.RequestGroupAccessByID(r.Context(), caller, body.GroupID, body.Justification)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Action == workflow.ActionAlreadyPending {
		status = http.StatusOK
	}
	writeJSON(w, r, status, res)
}

func (s *Server) reviewRequest(w http.ResponseWriter, r *http.Request) {
	var body reviewRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.ID == "" {
		writeError(w, r, store.Invalid("id", "is required"))
		return
	}

	req, err := s.engine.ReviewRequest(r.Context(), body.ID, body.Status, body.ReviewedBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetLicense(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	assignments, err := s.store.ListAssignments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []*models.LicenseAssignment{}
	}
	writeJSON(w, r, http.StatusOK, assignments)
}

func (s *Server) revokeLicense(w http.ResponseWriter, r *http.Request) {
	var body revokeLicenseBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	license, err := s.engine.RevokeLicense(r.Context(), r.PathValue("id"), body.UserEmail, body.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, license)
}

func (s *Server) startOnboarding(w http.ResponseWriter, r *http.Request) {
	var body startOnboardingBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := s.engine.StartOnboarding(r.Context(), r.PathValue("id"), body.EmployeeEmail, body.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}
