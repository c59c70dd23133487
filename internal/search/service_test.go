package search

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
	"github.com/osintlab/casedesk/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, logger), st
}

// providerServer fakes a configured lookup API. It counts hits and
// rejects requests without the expected key.
func providerServer(t *testing.T, apiKey string, results []model.SearchResult, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("X-Api-Key") != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func addConfig(t *testing.T, st *store.SQLiteStore, category model.SearchType, name, key, baseURL string) *model.APIConfig {
	t.Helper()
	cfg := &model.APIConfig{Category: category, ProviderName: name, APIKey: key, BaseURL: baseURL}
	if err := st.CreateAPIConfig(context.Background(), cfg); err != nil {
		t.Fatalf("CreateAPIConfig(%s): %v", name, err)
	}
	return cfg
}

func TestSearch_FanOutPartialSuccess(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	var goodHits atomic.Int64
	good := providerServer(t, "key-good", []model.SearchResult{
		{Type: model.EntityPhone, Title: "+628111", Confidence: 80},
	}, &goodHits)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)

	goodCfg := addConfig(t, st, model.SearchPhone, "good-provider", "key-good", good.URL)
	badCfg := addConfig(t, st, model.SearchPhone, "bad-provider", "key-bad", bad.URL)

	resp, err := svc.Search(ctx, model.SearchPhone, "+628111")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	if resp.Results[0].Source != "good-provider" {
		t.Errorf("Source = %q, want good-provider", resp.Results[0].Source)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Provider != "bad-provider" {
		t.Fatalf("Errors = %+v, want one entry for bad-provider", resp.Errors)
	}

	// Both providers were called and accounted.
	for _, cfg := range []*model.APIConfig{goodCfg, badCfg} {
		got, err := st.GetAPIConfig(ctx, cfg.ID)
		if err != nil {
			t.Fatalf("GetAPIConfig: %v", err)
		}
		if got.RequestsToday != 1 {
			t.Errorf("%s RequestsToday = %d, want 1", cfg.ProviderName, got.RequestsToday)
		}
	}
	failed, err := st.GetAPIConfig(ctx, badCfg.ID)
	if err != nil {
		t.Fatalf("GetAPIConfig: %v", err)
	}
	if failed.ErrorLog == "" {
		t.Error("expected error log on failed provider")
	}

	history, err := st.ListSearchHistory(ctx, model.HistoryFilter{})
	if err != nil {
		t.Fatalf("ListSearchHistory: %v", err)
	}
	if len(history) != 1 || history[0].ResultCount != 1 {
		t.Errorf("history = %+v, want one row with resultCount 1", history)
	}
}

func TestSearch_SkipsInactiveAndExhausted(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	var hits atomic.Int64
	srv := providerServer(t, "k", nil, &hits)

	inactive := addConfig(t, st, model.SearchEmail, "disabled", "k", srv.URL)
	off := false
	if _, err := st.UpdateAPIConfig(ctx, inactive.ID, model.APIConfigUpdate{IsActive: &off}); err != nil {
		t.Fatalf("UpdateAPIConfig: %v", err)
	}

	exhausted := addConfig(t, st, model.SearchEmail, "exhausted", "k", srv.URL)
	quota := 1
	if _, err := st.UpdateAPIConfig(ctx, exhausted.ID, model.APIConfigUpdate{QuotaLimit: &quota}); err != nil {
		t.Fatalf("UpdateAPIConfig: %v", err)
	}
	if err := st.RecordUsage(ctx, exhausted.ID, time.Now().UTC()); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	resp, err := svc.Search(ctx, model.SearchEmail, "x@example.com")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("upstream was called %d times, want 0", hits.Load())
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Provider != "exhausted" {
		t.Errorf("Errors = %+v, want quota entry for exhausted", resp.Errors)
	}
	if len(resp.Results) != 0 {
		t.Errorf("got %d results, want 0", len(resp.Results))
	}
}

func TestSearch_CacheAvoidsRepeatCalls(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	var hits atomic.Int64
	srv := providerServer(t, "k", []model.SearchResult{
		{Type: model.EntityUsername, Title: "ghostrider", Confidence: 60},
	}, &hits)
	addConfig(t, st, model.SearchUsername, "sherlock", "k", srv.URL)

	first, err := svc.Search(ctx, model.SearchUsername, "ghostrider")
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if first.Cached {
		t.Error("first search reported cached")
	}
	second, err := svc.Search(ctx, model.SearchUsername, "ghostrider")
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if !second.Cached {
		t.Error("second search not served from cache")
	}
	if hits.Load() != 1 {
		t.Errorf("upstream called %d times, want 1", hits.Load())
	}

	// Both searches land in history even when cached.
	history, err := st.ListSearchHistory(ctx, model.HistoryFilter{})
	if err != nil {
		t.Fatalf("ListSearchHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("got %d history rows, want 2", len(history))
	}
}

type stubProvider struct {
	name    string
	results []model.SearchResult
	err     error
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	return p.results, p.err
}

func TestSearch_BuiltinDomain(t *testing.T) {
	svc, _ := newTestService(t)
	svc.SetBuiltins(model.SearchDomain, &stubProvider{
		name: "rdap",
		results: []model.SearchResult{
			{Type: model.EntityDomain, Title: "example.com", Source: "rdap", Confidence: 90},
		},
	})

	resp, err := svc.Search(context.Background(), model.SearchDomain, "example.com")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Source != "rdap" {
		t.Fatalf("Results = %+v, want one rdap hit", resp.Results)
	}
}

func TestSearch_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Search(ctx, "dossier", "x"); !apperr.Is(err, apperr.Validation) {
		t.Errorf("unknown type: got %v, want validation error", err)
	}
	if _, err := svc.Search(ctx, model.SearchName, "   "); !apperr.Is(err, apperr.Validation) {
		t.Errorf("blank query: got %v, want validation error", err)
	}
}

func TestTestConnection(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	var hits atomic.Int64
	srv := providerServer(t, "k", nil, &hits)
	ok := addConfig(t, st, model.SearchBreach, "hibp", "k", srv.URL)

	if err := svc.TestConnection(ctx, ok.ID); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	got, err := st.GetAPIConfig(ctx, ok.ID)
	if err != nil {
		t.Fatalf("GetAPIConfig: %v", err)
	}
	if got.ErrorLog != "" {
		t.Errorf("ErrorLog = %q, want empty after successful test", got.ErrorLog)
	}
	if got.LastSync == nil {
		t.Error("LastSync not stamped")
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(bad.Close)
	failing := addConfig(t, st, model.SearchBreach, "dehashed", "bad-key", bad.URL)

	err = svc.TestConnection(ctx, failing.ID)
	if !apperr.Is(err, apperr.Provider) {
		t.Fatalf("got %v, want provider error", err)
	}
	got, err = st.GetAPIConfig(ctx, failing.ID)
	if err != nil {
		t.Fatalf("GetAPIConfig: %v", err)
	}
	if got.ErrorLog == "" {
		t.Error("expected error log after failed test")
	}
}
