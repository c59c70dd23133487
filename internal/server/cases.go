package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osintlab/casedesk/internal/model"
)

// HandleCreateCase creates an investigation case.
func (s *Server) HandleCreateCase(w http.ResponseWriter, r *http.Request) {
	if s.replayIdempotent(w, r, "case") {
		return
	}
	var req struct {
		Title       string           `json:"title"`
		Description string           `json:"description"`
		Status      model.CaseStatus `json:"status"`
		Tags        []string         `json:"tags"`
		Notes       string           `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c := &model.Case{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Tags:        req.Tags,
		Notes:       req.Notes,
	}
	if err := s.store.CreateCase(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.saveIdempotent(r, "case", c.ID)
	s.writeJSON(w, http.StatusCreated, c)
}

// HandleListCases lists cases, optionally filtered by status and a
// title/description substring (?status=, ?q=).
func (s *Server) HandleListCases(w http.ResponseWriter, r *http.Request) {
	f := model.CaseFilter{
		Status: model.CaseStatus(r.URL.Query().Get("status")),
		Query:  r.URL.Query().Get("q"),
	}
	cases, err := s.store.ListCases(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cases == nil {
		cases = []*model.Case{}
	}
	s.writeJSON(w, http.StatusOK, cases)
}

func (s *Server) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCase(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

// HandleUpdateCase applies a partial update. A version field in the
// body guards against concurrent edits.
func (s *Server) HandleUpdateCase(w http.ResponseWriter, r *http.Request) {
	var upd model.CaseUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.store.UpdateCase(r.Context(), chi.URLParam(r, "caseID"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) HandleDeleteCase(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCase(r.Context(), chi.URLParam(r, "caseID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleListCaseEntities(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if _, err := s.store.GetCase(r.Context(), caseID); err != nil {
		s.writeError(w, r, err)
		return
	}
	entities, err := s.store.ListEntitiesByCase(r.Context(), caseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entities)
}

func (s *Server) HandleListCaseRelationships(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if _, err := s.store.GetCase(r.Context(), caseID); err != nil {
		s.writeError(w, r, err)
		return
	}
	rels, err := s.store.ListRelationshipsByCase(r.Context(), caseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rels)
}

// HandleCaseTimeline returns the case activity log, newest first.
func (s *Server) HandleCaseTimeline(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if _, err := s.store.GetCase(r.Context(), caseID); err != nil {
		s.writeError(w, r, err)
		return
	}
	activity, err := s.store.ListActivityByCase(r.Context(), caseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, activity)
}
