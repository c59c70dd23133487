package server

import (
	"encoding/json"
	"net/http"

	"github.com/osintlab/casedesk/internal/apperr"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

type errorResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto status codes. Unclassified
// errors are logged with the request ID and reported generically so
// internals never leak.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch apperr.KindOf(err) {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.Provider:
		status = http.StatusBadGateway
	default:
		s.logger.Error("internal error",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Message: err.Error()})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validationf("invalid JSON body: %v", err)
	}
	return nil
}
