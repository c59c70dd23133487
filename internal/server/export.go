package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
)

type caseExport struct {
	Case          *model.Case                 `json:"case"`
	Entities      []*model.Entity             `json:"entities"`
	Relationships []*model.EntityRelationship `json:"relationships"`
	ExportedAt    time.Time                   `json:"exportedAt"`
}

// HandleExportCase downloads a case with its entities and relationships
// (?format=json|csv, default json).
func (s *Server) HandleExportCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	c, err := s.store.GetCase(r.Context(), caseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entities, err := s.store.ListEntitiesByCase(r.Context(), caseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rels, err := s.store.ListRelationshipsByCase(r.Context(), caseID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "case-"+caseID+".json"))
		s.writeJSON(w, http.StatusOK, caseExport{
			Case:          c,
			Entities:      entities,
			Relationships: rels,
			ExportedAt:    time.Now().UTC(),
		})
	case "csv":
		s.exportCSV(w, r, caseID, entities, rels)
	default:
		s.writeError(w, r, apperr.Validationf("format must be json or csv"))
	}
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request, caseID string, entities []*model.Entity, rels []*model.EntityRelationship) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "case-"+caseID+".csv"))

	cw := csv.NewWriter(w)
	write := func(record ...string) {
		// Errors surface on Flush.
		_ = cw.Write(record)
	}

	write("record", "id", "type", "label", "riskLevel", "confidence", "tags", "notes")
	for _, e := range entities {
		write("entity", e.ID, string(e.Type), e.Label, string(e.RiskLevel),
			strconv.Itoa(e.ConfidenceScore), strings.Join(e.Tags, ";"), e.Notes)
	}
	for _, rel := range rels {
		write("relationship", rel.ID, string(rel.RelationshipType),
			rel.SourceEntityID+"->"+rel.TargetEntityID, "",
			strconv.Itoa(rel.Strength), "", rel.Notes)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("write csv export",
			"caseId", caseID,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
}
