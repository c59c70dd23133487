package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/osintlab/casedesk/internal/model"
)

// HandleCreateEntity adds an entity to a case. When the entity is
// flagged and its case is monitored, the alert notifier is kicked off in
// the background; delivery problems never fail the create.
func (s *Server) HandleCreateEntity(w http.ResponseWriter, r *http.Request) {
	if s.replayIdempotent(w, r, "entity") {
		return
	}
	var e model.Entity
	if err := decodeJSON(w, r, &e); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Identity and bookkeeping fields are always server-assigned.
	e.ID = ""
	e.Version = 0
	e.CreatedAt = time.Time{}
	if err := s.store.CreateEntity(r.Context(), &e); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.saveIdempotent(r, "entity", e.ID)
	s.maybeAlert(r, &e)
	s.writeJSON(w, http.StatusCreated, &e)
}

func (s *Server) maybeAlert(r *http.Request, e *model.Entity) {
	if s.notifier == nil || !e.RiskLevel.Flagged() {
		return
	}
	c, err := s.store.GetCase(r.Context(), e.CaseID)
	if err != nil {
		s.logger.Warn("load case for alert", "caseId", e.CaseID, "error", err)
		return
	}
	go func() {
		if _, err := s.notifier.NotifyRiskEntity(c, e); err != nil {
			s.logger.Warn("send risk alert", "entityId", e.ID, "error", err)
		}
	}()
}

func (s *Server) HandleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	var upd model.EntityUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.store.UpdateEntity(r.Context(), chi.URLParam(r, "entityID"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) HandleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEntity(r.Context(), chi.URLParam(r, "entityID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
