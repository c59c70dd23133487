package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osintlab/casedesk/internal/model"
)

// configResponse is the read shape of a provider config. The key itself
// is write-only; only a masked hint ever leaves the server.
type configResponse struct {
	*model.APIConfig
	APIKeyHint string `json:"apiKeyHint"`
}

func toConfigResponse(c *model.APIConfig) configResponse {
	return configResponse{APIConfig: c, APIKeyHint: c.RedactedKey()}
}

// HandleCreateConfig registers (or replaces) a provider key. Re-posting
// the same category and provider rotates the key in place.
func (s *Server) HandleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category     model.SearchType `json:"category"`
		ProviderName string           `json:"providerName"`
		APIKey       string           `json:"apiKey"`
		BaseURL      string           `json:"baseUrl"`
		QuotaLimit   int              `json:"quotaLimit"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c := &model.APIConfig{
		Category:     req.Category,
		ProviderName: req.ProviderName,
		APIKey:       req.APIKey,
		BaseURL:      req.BaseURL,
		QuotaLimit:   req.QuotaLimit,
	}
	if err := s.store.CreateAPIConfig(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toConfigResponse(c))
}

func (s *Server) HandleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListAPIConfigs(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]configResponse, 0, len(configs))
	for _, c := range configs {
		out = append(out, toConfigResponse(c))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetAPIConfig(r.Context(), chi.URLParam(r, "configID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toConfigResponse(c))
}

func (s *Server) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var upd model.APIConfigUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.store.UpdateAPIConfig(r.Context(), chi.URLParam(r, "configID"), upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toConfigResponse(c))
}

func (s *Server) HandleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAPIConfig(r.Context(), chi.URLParam(r, "configID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTestConfig probes the configured provider and persists the
// outcome on the config row.
func (s *Server) HandleTestConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.search.TestConnection(r.Context(), chi.URLParam(r, "configID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
