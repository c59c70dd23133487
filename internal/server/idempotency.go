package server

import (
	"net/http"

	"github.com/osintlab/casedesk/internal/apperr"
)

const idempotencyHeader = "Idempotency-Key"

// replayIdempotent answers a POST create from a previous outcome when
// the client retries with the same Idempotency-Key. It reports whether
// a response was written.
func (s *Server) replayIdempotent(w http.ResponseWriter, r *http.Request, kind string) bool {
	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		return false
	}
	storedKind, resourceID, err := s.store.LookupIdempotencyKey(r.Context(), key)
	if apperr.Is(err, apperr.NotFound) {
		return false
	}
	if err != nil {
		s.writeError(w, r, err)
		return true
	}
	if storedKind != kind {
		s.writeError(w, r, apperr.Conflictf("idempotency key already used for a %s", storedKind))
		return true
	}

	switch kind {
	case "case":
		if c, err := s.store.GetCase(r.Context(), resourceID); err == nil {
			s.writeJSON(w, http.StatusOK, c)
			return true
		}
	case "entity":
		if e, err := s.store.GetEntity(r.Context(), resourceID); err == nil {
			s.writeJSON(w, http.StatusOK, e)
			return true
		}
	}
	// The original resource is gone (or has no lookup); return the
	// binding rather than silently creating a duplicate.
	s.writeJSON(w, http.StatusOK, map[string]string{"id": resourceID})
	return true
}

// saveIdempotent records the key-to-resource binding after a successful
// create. Failures are logged; the create already happened.
func (s *Server) saveIdempotent(r *http.Request, kind, resourceID string) {
	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		return
	}
	if err := s.store.SaveIdempotencyKey(r.Context(), key, kind, resourceID); err != nil {
		s.logger.Warn("save idempotency key", "kind", kind, "error", err)
	}
}
