// Package search fans queries out across configured lookup providers
// and the built-in key-less sources, records usage and history, and
// caches results.
package search

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
	"github.com/osintlab/casedesk/internal/store"
)

// maxConcurrentProviders caps the fan-out so a category with many
// configured providers cannot open unbounded upstream connections.
const maxConcurrentProviders = 4

// ProviderError reports one provider's failure inside an otherwise
// successful search.
type ProviderError struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

// Response is the aggregate outcome of one search. ProvidersQueried
// tells an empty result set apart from a category with no providers
// configured at all.
type Response struct {
	SearchType       model.SearchType     `json:"searchType"`
	Query            string               `json:"query"`
	Results          []model.SearchResult `json:"results"`
	Errors           []ProviderError      `json:"errors,omitempty"`
	ProvidersQueried int                  `json:"providersQueried"`
	Cached           bool                 `json:"cached"`
}

type cacheKey struct {
	typ   model.SearchType
	query string
}

// Service coordinates searches: provider selection, fan-out, quota
// accounting, history, and caching.
type Service struct {
	store      store.Store
	logger     *slog.Logger
	httpClient *http.Client
	cache      *ttlCache[cacheKey, []model.SearchResult]
	builtins   map[model.SearchType][]Provider
}

// NewService builds a Service with the built-in domain and ip providers
// and a result cache.
func NewService(st store.Store, logger *slog.Logger) *Service {
	rdapClient := NewRDAPClient()
	return &Service{
		store:      st,
		logger:     logger,
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
		cache:      newTTLCache[cacheKey, []model.SearchResult](DefaultCacheTTL),
		builtins: map[model.SearchType][]Provider{
			model.SearchDomain: {&domainProvider{client: rdapClient}},
			model.SearchIP: {
				&ipProvider{client: NewASNClient()},
				&ipNetworkProvider{client: rdapClient},
			},
		},
	}
}

// SetBuiltins replaces the built-in providers for a category. Used in tests.
func (s *Service) SetBuiltins(typ model.SearchType, providers ...Provider) {
	s.builtins[typ] = providers
}

// Search runs the query against every eligible provider for the
// category. Provider failures do not fail the search; they are reported
// alongside the results the remaining providers returned.
func (s *Service) Search(ctx context.Context, typ model.SearchType, query string) (*Response, error) {
	if !typ.Valid() {
		return nil, apperr.Validationf("unknown search type %q", typ)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validationf("query is required")
	}

	resp := &Response{SearchType: typ, Query: query, Results: []model.SearchResult{}}

	key := cacheKey{typ: typ, query: query}
	if cached, ok := s.cache.Get(key); ok {
		resp.Results = cached
		resp.Cached = true
		s.recordHistory(ctx, typ, query, len(cached))
		return resp, nil
	}

	jobs, skipped, err := s.selectProviders(ctx, typ)
	if err != nil {
		return nil, err
	}
	resp.Errors = skipped
	resp.ProvidersQueried = len(jobs)

	results := make([][]model.SearchResult, len(jobs))
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProviders)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			res, err := j.provider.Search(gctx, query)
			results[i], errs[i] = res, err
			if j.configID != "" {
				s.accountUsage(ctx, j.configID, err)
			}
			return nil
		})
	}
	g.Wait()

	for i, j := range jobs {
		if errs[i] != nil {
			s.logger.Warn("provider search failed",
				"provider", j.provider.Name(), "type", string(typ), "error", errs[i])
			resp.Errors = append(resp.Errors, ProviderError{
				Provider: j.provider.Name(),
				Message:  errs[i].Error(),
			})
			continue
		}
		resp.Results = append(resp.Results, results[i]...)
	}

	s.recordHistory(ctx, typ, query, len(resp.Results))
	if len(resp.Errors) == 0 && len(jobs) > 0 {
		s.cache.Set(key, resp.Results)
	}
	return resp, nil
}

type providerJob struct {
	provider Provider
	// configID is empty for built-in providers; set for configured ones
	// so usage can be accounted against the config row.
	configID string
}

// selectProviders resolves the providers eligible for a category: the
// built-in key-less source, if any, plus every active config that still
// has quota. Inactive configs are never called; exhausted ones are
// reported, not called.
func (s *Service) selectProviders(ctx context.Context, typ model.SearchType) ([]providerJob, []ProviderError, error) {
	var jobs []providerJob
	for _, builtin := range s.builtins[typ] {
		jobs = append(jobs, providerJob{provider: builtin})
	}

	configs, err := s.store.ListActiveConfigsByCategory(ctx, typ)
	if err != nil {
		return nil, nil, err
	}
	var skipped []ProviderError
	for _, cfg := range configs {
		if cfg.QuotaLimit > 0 && cfg.RequestsToday >= cfg.QuotaLimit {
			skipped = append(skipped, ProviderError{
				Provider: cfg.ProviderName,
				Message:  "daily quota exhausted",
			})
			continue
		}
		jobs = append(jobs, providerJob{provider: newHTTPProvider(cfg, s.httpClient), configID: cfg.ID})
	}
	return jobs, skipped, nil
}

// accountUsage bumps the daily counter and stores the call outcome for
// a configured provider. Accounting failures are logged, never fatal.
func (s *Service) accountUsage(ctx context.Context, configID string, callErr error) {
	now := time.Now().UTC()
	if err := s.store.RecordUsage(ctx, configID, now); err != nil {
		s.logger.Warn("record provider usage", "configId", configID, "error", err)
	}
	msg := ""
	if callErr != nil {
		msg = callErr.Error()
	}
	if err := s.store.RecordSyncResult(ctx, configID, msg, now); err != nil {
		s.logger.Warn("record provider sync result", "configId", configID, "error", err)
	}
}

func (s *Service) recordHistory(ctx context.Context, typ model.SearchType, query string, count int) {
	h := &model.SearchHistory{SearchType: typ, SearchQuery: query, ResultCount: count}
	if err := s.store.RecordSearch(ctx, h); err != nil {
		s.logger.Warn("record search history", "type", string(typ), "error", err)
	}
}

// TestConnection probes one configured provider with a harmless query
// and persists the outcome on the config row.
func (s *Service) TestConnection(ctx context.Context, configID string) error {
	cfg, err := s.store.GetAPIConfig(ctx, configID)
	if err != nil {
		return err
	}
	if !cfg.IsActive {
		return apperr.Validationf("provider %s is disabled", cfg.ProviderName)
	}
	p := newHTTPProvider(cfg, s.httpClient)
	_, callErr := p.Search(ctx, "ping")
	msg := ""
	if callErr != nil {
		msg = callErr.Error()
	}
	if err := s.store.RecordSyncResult(ctx, configID, msg, time.Now().UTC()); err != nil {
		return err
	}
	if callErr != nil {
		return apperr.Providerf(callErr, "connection test for %s failed", cfg.ProviderName)
	}
	return nil
}
