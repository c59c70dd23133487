package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osintlab/casedesk/internal/model"
)

// defaultStrength applies when a create request omits the field.
const defaultStrength = 50

// HandleCreateRelationship links two entities of the same case.
func (s *Server) HandleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	if s.replayIdempotent(w, r, "relationship") {
		return
	}
	var req struct {
		SourceEntityID   string                 `json:"sourceEntityId"`
		TargetEntityID   string                 `json:"targetEntityId"`
		RelationshipType model.RelationshipType `json:"relationshipType"`
		Strength         *int                   `json:"strength"`
		Notes            string                 `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	strength := defaultStrength
	if req.Strength != nil {
		strength = *req.Strength
	}
	rel := &model.EntityRelationship{
		SourceEntityID:   req.SourceEntityID,
		TargetEntityID:   req.TargetEntityID,
		RelationshipType: req.RelationshipType,
		Strength:         strength,
		Notes:            req.Notes,
	}
	if err := s.store.CreateRelationship(r.Context(), rel); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.saveIdempotent(r, "relationship", rel.ID)
	s.writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) HandleDeleteRelationship(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRelationship(r.Context(), chi.URLParam(r, "relationshipID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
