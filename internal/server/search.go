package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
)

// HandleSearch runs a query across the category's providers. Provider
// failures are reported inside a 200 response; the search itself only
// fails on bad input.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type  model.SearchType `json:"type"`
		Query string           `json:"query"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.search.Search(r.Context(), req.Type, req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HandleSearchHistory lists past searches, newest first
// (?type=, ?range=today|week|month, ?limit=).
func (s *Server) HandleSearchHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := model.HistoryFilter{Limit: defaultHistoryLimit}
	if t := q.Get("type"); t != "" {
		f.Type = model.SearchType(t)
		if !f.Type.Valid() {
			s.writeError(w, r, apperr.Validationf("unknown search type %q", t))
			return
		}
	}
	if lim := q.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil || n < 1 {
			s.writeError(w, r, apperr.Validationf("limit must be a positive integer"))
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		f.Limit = n
	}

	now := time.Now().UTC()
	switch q.Get("range") {
	case "", "all":
	case "today":
		f.Since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case "week":
		f.Since = now.AddDate(0, 0, -7)
	case "month":
		f.Since = now.AddDate(0, -1, 0)
	default:
		s.writeError(w, r, apperr.Validationf("range must be today, week, or month"))
		return
	}

	history, err := s.store.ListSearchHistory(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// HandleStats returns the dashboard aggregates.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}
