package server

import (
	"context"
	"net/http"

	"github.com/saga-it/qyburn/internal/models"
)

func listJSON[T any](w http.ResponseWriter, r *http.Request, list func(context.Context) ([]T, error)) {
	items, err := list(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, r, http.StatusOK, items)
}

func getJSON[T any](w http.ResponseWriter, r *http.Request, get func(context.Context, string) (T, error)) {
	item, err := get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, item)
}

// deleteByID removes an entity and refreshes dashboard counters.
func (s *Server) deleteByID(w http.ResponseWriter, r *http.Request, del func(context.Context, string) error) {
	if err := del(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.engine.PublishStats(r.Context())
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

// Licenses

func (s *Server) listLicenses(w http.ResponseWriter, r *http.Request) {
	listJSON(w, r, s.store.ListLicenses)
}

func (s *Server) getLicense(w http.ResponseWriter, r *http.Request) {
	getJSON(w, r, s.store.GetLicense)
}

func (s *Server) createLicense(w http.ResponseWriter, r *http.Request) {
	license := &models.License{}
	if err := decodeJSON(w, r, license); err != nil {
		writeError(w, r, err)
		return
	}
	license.ID = ""

	if err := s.store.CreateLicense(r.Context(), license); err != nil {
		writeError(w, r, err)
		return
	}
	s.engine.PublishStats(r.Context())
	writeJSON(w, r, http.StatusCreated, license)
}

func (s *Server) updateLicense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	license, err := s.store.GetLicense(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := decodeJSON(w, r, license); err != nil {
		writeError(w, r, err)
		return
	}
	license.ID = id

	if err := s.store.UpdateLicense(r.Context(), license); err != nil {
		writeError(w, r, err)
		return
	}
	s.engine.PublishStats(r.Context())
	writeJSON(w, r, http.StatusOK, license)
}

func (s *Server) deleteLicense(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteLicense)
}

// Restricted groups

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	listJSON(w, r, s.store.ListGroups)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	getJSON(w, r, s.store.GetGroup)
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	group := &models.RestrictedGroup{RequiresJustification: true}
	if err := decodeJSON(w, r, group); err != nil {
		writeError(w, r, err)
		return
	}
	group.ID = ""

	if err := s.store.CreateGroup(r.Context(), group); err != nil {
		writeError(w, r, err)
		return
	}
	s.engine.PublishStats(r.Context())
	writeJSON(w, r, http.StatusCreated, group)
}

func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	group, err := s.store.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := decodeJSON(w, r, group); err != nil {
		writeError(w, r, err)
		return
	}
	group.ID = id

	if err := s.store.UpdateGroup(r.Context(), group); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, group)
}

// deleteGroup leaves the group's access requests in place.
func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteGroup)
}

// Onboarding templates

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	listJSON(w, r, s.store.ListTemplates)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	getJSON(w, r, s.store.GetTemplate)
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := &models.OnboardingTemplate{IsActive: true}
	if err := decodeJSON(w, r, tmpl); err != nil {
		writeError(w, r, err)
		return
	}
	tmpl.ID = ""

	if err := s.store.CreateTemplate(r.Context(), tmpl); err != nil {
		writeError(w, r, err)
		return
	}
	s.engine.PublishStats(r.Context())
	writeJSON(w, r, http.StatusCreated, tmpl)
}

func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tmpl, err := s.store.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := decodeJSON(w, r, tmpl); err != nil {
		writeError(w, r, err)
		return
	}
	tmpl.ID = id

	if err := s.store.UpdateTemplate(r.Context(), tmpl); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tmpl)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteTemplate)
}

// Knowledge documents

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	listJSON(w, r, s.store.ListDocuments)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	getJSON(w, r, s.store.GetDocument)
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	doc := &models.KnowledgeDocument{}
	if err := decodeJSON(w, r, doc); err != nil {
		writeError(w, r, err)
		return
	}
	doc.ID = ""

	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		writeError(w, r, err)
		return
	}
	s.engine.PublishStats(r.Context())
	writeJSON(w, r, http.StatusCreated, doc)
}

func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := decodeJSON(w, r, doc); err != nil {
		writeError(w, r, err)
		return
	}
	doc.ID = id

	if err := s.store.UpdateDocument(r.Context(), doc); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	s.deleteByID(w, r, s.store.DeleteDocument)
}
