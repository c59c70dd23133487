package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/osintlab/casedesk/internal/alert"
	"github.com/osintlab/casedesk/internal/model"
	"github.com/osintlab/casedesk/internal/store"
)

type testEnv struct {
	srv   *Server
	store *store.SQLiteStore
	ts    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Config{}, st, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, store: st, ts: ts}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *http.Response {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.ts.URL+path, buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (env *testEnv) createCase(t *testing.T, title string) model.Case {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/cases", map[string]interface{}{"title": title})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create case: status %d", resp.StatusCode)
	}
	var c model.Case
	decodeBody(t, resp, &c)
	return c
}

func (env *testEnv) createEntity(t *testing.T, caseID string, typ model.EntityType, label string) model.Entity {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/entities", map[string]interface{}{
		"caseId": caseID, "type": typ, "label": label,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create entity: status %d", resp.StatusCode)
	}
	var e model.Entity
	decodeBody(t, resp, &e)
	return e
}

func TestCaseLifecycle(t *testing.T) {
	env := newTestEnv(t)

	c := env.createCase(t, "Fraud Ring A")
	if c.Status != model.CaseActive || c.Version != 1 {
		t.Errorf("created case = %+v", c)
	}

	resp := env.do(t, http.MethodPatch, "/api/cases/"+c.ID, map[string]interface{}{
		"status": "monitoring", "notes": "escalated",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch case: status %d", resp.StatusCode)
	}
	var updated model.Case
	decodeBody(t, resp, &updated)
	if updated.Status != model.CaseMonitoring || updated.Version != 2 {
		t.Errorf("updated case = %+v", updated)
	}

	resp = env.do(t, http.MethodGet, "/api/cases?status=monitoring", nil)
	var listed []model.Case
	decodeBody(t, resp, &listed)
	if len(listed) != 1 || listed[0].ID != c.ID {
		t.Errorf("listed = %+v", listed)
	}

	// Timeline recorded the status change and the notes edit.
	resp = env.do(t, http.MethodGet, "/api/cases/"+c.ID+"/timeline", nil)
	var activity []model.CaseActivity
	decodeBody(t, resp, &activity)
	if len(activity) != 2 {
		t.Errorf("got %d activity rows, want 2", len(activity))
	}

	resp = env.do(t, http.MethodDelete, "/api/cases/"+c.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete case: status %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/api/cases/"+c.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", resp.StatusCode)
	}
}

func TestCreateCase_BadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"blank title", map[string]interface{}{"title": "  "}},
		{"title too long", map[string]interface{}{"title": strings.Repeat("x", model.MaxTitleLen+1)}},
		{"unknown status", map[string]interface{}{"title": "x", "status": "open"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/cases", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCreateCase_Idempotency(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]interface{}{"title": "Retry me"}
	first := env.do(t, http.MethodPost, "/api/cases", body, idempotencyHeader, "key-1")
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first: status %d", first.StatusCode)
	}
	var c1 model.Case
	decodeBody(t, first, &c1)

	second := env.do(t, http.MethodPost, "/api/cases", body, idempotencyHeader, "key-1")
	if second.StatusCode != http.StatusOK {
		t.Fatalf("replay: status %d, want 200", second.StatusCode)
	}
	var c2 model.Case
	decodeBody(t, second, &c2)
	if c2.ID != c1.ID {
		t.Errorf("replay created a new case: %q vs %q", c2.ID, c1.ID)
	}

	cases, err := env.store.ListCases(context.Background(), model.CaseFilter{})
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if len(cases) != 1 {
		t.Errorf("got %d cases, want 1", len(cases))
	}
}

func TestEntityEndpoints(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "Entities")

	resp := env.do(t, http.MethodPost, "/api/entities", map[string]interface{}{
		"caseId": "ghost", "type": "email", "label": "x@example.com",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown case: status %d, want 404", resp.StatusCode)
	}

	e := env.createEntity(t, c.ID, model.EntityPhone, "+628111")
	if e.RiskLevel != model.RiskUnknown {
		t.Errorf("RiskLevel = %q, want unknown default", e.RiskLevel)
	}

	resp = env.do(t, http.MethodPatch, "/api/entities/"+e.ID, map[string]interface{}{
		"riskLevel": "high", "confidenceScore": 75,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch entity: status %d", resp.StatusCode)
	}
	var updated model.Entity
	decodeBody(t, resp, &updated)
	if updated.RiskLevel != model.RiskHigh || updated.ConfidenceScore != 75 {
		t.Errorf("updated = %+v", updated)
	}

	resp = env.do(t, http.MethodGet, "/api/cases/"+c.ID+"/entities", nil)
	var entities []model.Entity
	decodeBody(t, resp, &entities)
	if len(entities) != 1 {
		t.Errorf("got %d entities, want 1", len(entities))
	}

	resp = env.do(t, http.MethodDelete, "/api/entities/"+e.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete entity: status %d", resp.StatusCode)
	}
}

func TestRelationshipEndpoints(t *testing.T) {
	env := newTestEnv(t)
	c1 := env.createCase(t, "One")
	c2 := env.createCase(t, "Two")
	a := env.createEntity(t, c1.ID, model.EntityPerson, "A")
	b := env.createEntity(t, c1.ID, model.EntityWallet, "bc1qxyz")
	outsider := env.createEntity(t, c2.ID, model.EntityPerson, "B")

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"self edge", map[string]interface{}{
			"sourceEntityId": a.ID, "targetEntityId": a.ID, "relationshipType": "owns",
		}, http.StatusBadRequest},
		{"cross case", map[string]interface{}{
			"sourceEntityId": a.ID, "targetEntityId": outsider.ID, "relationshipType": "linked",
		}, http.StatusConflict},
		{"missing endpoint", map[string]interface{}{
			"sourceEntityId": a.ID, "targetEntityId": "ghost", "relationshipType": "linked",
		}, http.StatusNotFound},
		{"bad strength", map[string]interface{}{
			"sourceEntityId": a.ID, "targetEntityId": b.ID, "relationshipType": "linked", "strength": 101,
		}, http.StatusBadRequest},
		{"ok", map[string]interface{}{
			"sourceEntityId": a.ID, "targetEntityId": b.ID, "relationshipType": "controls",
		}, http.StatusCreated},
	}
	var created model.EntityRelationship
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/relationships", tt.body)
			if resp.StatusCode != tt.want {
				resp.Body.Close()
				t.Fatalf("status %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusCreated {
				decodeBody(t, resp, &created)
			} else {
				resp.Body.Close()
			}
		})
	}
	if created.Strength != defaultStrength {
		t.Errorf("Strength = %d, want default %d", created.Strength, defaultStrength)
	}

	resp := env.do(t, http.MethodGet, "/api/cases/"+c1.ID+"/relationships", nil)
	var rels []model.EntityRelationship
	decodeBody(t, resp, &rels)
	if len(rels) != 1 {
		t.Fatalf("got %d relationships, want 1", len(rels))
	}

	resp = env.do(t, http.MethodDelete, "/api/relationships/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete relationship: status %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/api/relationships/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", resp.StatusCode)
	}
}

func TestConfigEndpoints_KeyNeverLeaves(t *testing.T) {
	env := newTestEnv(t)

	const secret = "sk-live-abcdef9876"
	resp := env.do(t, http.MethodPost, "/api/api-configs", map[string]interface{}{
		"category": "phone", "providerName": "truecaller", "apiKey": secret, "quotaLimit": 100,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create config: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if bytes.Contains(raw, []byte(secret)) {
		t.Fatal("api key leaked in create response")
	}
	var cfg struct {
		ID         string `json:"id"`
		APIKeyHint string `json:"apiKeyHint"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.APIKeyHint != "****9876" {
		t.Errorf("APIKeyHint = %q, want ****9876", cfg.APIKeyHint)
	}

	resp = env.do(t, http.MethodGet, "/api/api-configs", nil)
	raw, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if bytes.Contains(raw, []byte(secret)) {
		t.Fatal("api key leaked in list response")
	}

	off := false
	resp = env.do(t, http.MethodPatch, "/api/api-configs/"+cfg.ID, map[string]interface{}{"isActive": off})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch config: status %d", resp.StatusCode)
	}
	var patched struct {
		IsActive bool `json:"isActive"`
	}
	decodeBody(t, resp, &patched)
	if patched.IsActive {
		t.Error("IsActive still true after disable")
	}

	resp = env.do(t, http.MethodDelete, "/api/api-configs/"+cfg.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete config: status %d", resp.StatusCode)
	}
}

func TestTestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	}))
	t.Cleanup(upstream.Close)

	resp := env.do(t, http.MethodPost, "/api/api-configs", map[string]interface{}{
		"category": "breach", "providerName": "hibp", "apiKey": "k", "baseUrl": upstream.URL,
	})
	var cfg struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &cfg)

	resp = env.do(t, http.MethodPost, "/api/api-configs/"+cfg.ID+"/test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("test config: status %d", resp.StatusCode)
	}
	var out map[string]string
	decodeBody(t, resp, &out)
	if out["status"] != "ok" {
		t.Errorf("status = %q, want ok", out["status"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []model.SearchResult{
				{Type: model.EntityUsername, Title: "ghostrider", Confidence: 70},
			},
		})
	}))
	t.Cleanup(upstream.Close)

	resp := env.do(t, http.MethodPost, "/api/api-configs", map[string]interface{}{
		"category": "username", "providerName": "sherlock", "apiKey": "k", "baseUrl": upstream.URL,
	})
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/search", map[string]interface{}{
		"type": "username", "query": "ghostrider",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: status %d", resp.StatusCode)
	}
	var out struct {
		Results          []model.SearchResult `json:"results"`
		ProvidersQueried int                  `json:"providersQueried"`
		Cached           bool                 `json:"cached"`
	}
	decodeBody(t, resp, &out)
	if len(out.Results) != 1 || out.Results[0].Source != "sherlock" {
		t.Fatalf("results = %+v", out.Results)
	}

	// No providers for the category: 200 with empty results.
	resp = env.do(t, http.MethodPost, "/api/search", map[string]interface{}{
		"type": "vehicle", "query": "B 1234 XYZ",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty search: status %d", resp.StatusCode)
	}
	decodeBody(t, resp, &out)
	if len(out.Results) != 0 || out.ProvidersQueried != 0 {
		t.Errorf("results = %+v, providersQueried = %d, want none", out.Results, out.ProvidersQueried)
	}

	// Unknown category: 400.
	resp = env.do(t, http.MethodPost, "/api/search", map[string]interface{}{
		"type": "dossier", "query": "x",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown type: status %d, want 400", resp.StatusCode)
	}
}

func TestSearchHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, q := range []string{"+62811", "+62822"} {
		if err := env.store.RecordSearch(ctx, &model.SearchHistory{
			SearchType: model.SearchPhone, SearchQuery: q, ResultCount: 2,
		}); err != nil {
			t.Fatalf("RecordSearch: %v", err)
		}
	}

	resp := env.do(t, http.MethodGet, "/api/search-history?type=phone&range=today", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d", resp.StatusCode)
	}
	var history []model.SearchHistory
	decodeBody(t, resp, &history)
	if len(history) != 2 {
		t.Errorf("got %d rows, want 2", len(history))
	}

	resp = env.do(t, http.MethodGet, "/api/search-history?range=fortnight", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad range: status %d, want 400", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "Stats")
	env.createEntity(t, c.ID, model.EntityPerson, "Suspect")

	resp := env.do(t, http.MethodGet, "/api/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: status %d", resp.StatusCode)
	}
	var st model.Stats
	decodeBody(t, resp, &st)
	if st.TotalCases != 1 || st.TotalEntities != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCase(t, "Export me")
	a := env.createEntity(t, c.ID, model.EntityPerson, "A")
	b := env.createEntity(t, c.ID, model.EntityEmail, "a@example.com")
	resp := env.do(t, http.MethodPost, "/api/relationships", map[string]interface{}{
		"sourceEntityId": a.ID, "targetEntityId": b.ID, "relationshipType": "owns",
	})
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/cases/"+c.ID+"/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export json: status %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, ".json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var exported caseExport
	decodeBody(t, resp, &exported)
	if len(exported.Entities) != 2 || len(exported.Relationships) != 1 {
		t.Errorf("export = %d entities, %d relationships", len(exported.Entities), len(exported.Relationships))
	}

	resp = env.do(t, http.MethodGet, "/api/cases/"+c.ID+"/export?format=csv", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export csv: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, "a@example.com") || !strings.Contains(body, "relationship") {
		t.Errorf("csv body missing rows:\n%s", body)
	}

	resp = env.do(t, http.MethodGet, "/api/cases/"+c.ID+"/export?format=xml", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad format: status %d, want 400", resp.StatusCode)
	}
}

type chanSender struct {
	sent chan *mail.SGMailV3
}

func (c *chanSender) Send(email *mail.SGMailV3) (*alert.SendResult, error) {
	c.sent <- email
	return &alert.SendResult{StatusCode: 202}, nil
}

func TestCreateEntity_TriggersAlert(t *testing.T) {
	env := newTestEnv(t)
	sender := &chanSender{sent: make(chan *mail.SGMailV3, 1)}
	env.srv.SetNotifier(alert.NewNotifier(alert.EmailConfig{
		FromAddress: "alerts@example.com",
		ToAddress:   "analyst@example.com",
	}, sender))

	c := env.createCase(t, "Monitored")
	status := model.CaseMonitoring
	if _, err := env.store.UpdateCase(context.Background(), c.ID, model.CaseUpdate{Status: &status}); err != nil {
		t.Fatalf("UpdateCase: %v", err)
	}

	resp := env.do(t, http.MethodPost, "/api/entities", map[string]interface{}{
		"caseId": c.ID, "type": "wallet", "label": "bc1qxyz", "riskLevel": "critical",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create entity: status %d", resp.StatusCode)
	}

	select {
	case msg := <-sender.sent:
		if !strings.Contains(msg.Subject, "Monitored") {
			t.Errorf("Subject = %q", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert sent for critical entity on monitored case")
	}

	// Low-risk entity: no alert.
	resp = env.do(t, http.MethodPost, "/api/entities", map[string]interface{}{
		"caseId": c.ID, "type": "email", "label": "x@example.com", "riskLevel": "low",
	})
	resp.Body.Close()
	select {
	case <-sender.sent:
		t.Fatal("alert sent for low-risk entity")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}
