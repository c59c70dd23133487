package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
)

// maxProviderBody caps how much of an upstream response is read.
// Providers are untrusted input.
const maxProviderBody = 1 << 20

const defaultProviderTimeout = 10 * time.Second

// httpProvider calls a configured third-party lookup API. The contract
// is a GET against {baseUrl}/v1/search with the category and query as
// parameters and the key in the X-Api-Key header; the body is a JSON
// object with a "results" array.
type httpProvider struct {
	name     string
	category model.SearchType
	baseURL  string
	apiKey   string
	client   *http.Client
}

func newHTTPProvider(cfg *model.APIConfig, client *http.Client) *httpProvider {
	if client == nil {
		client = &http.Client{Timeout: defaultProviderTimeout}
	}
	return &httpProvider{
		name:     cfg.ProviderName,
		category: cfg.Category,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		client:   client,
	}
}

func (p *httpProvider) Name() string { return p.name }

func (p *httpProvider) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	results, err := p.do(ctx, query)
	if err == nil {
		return results, nil
	}
	// One retry; transient upstream hiccups are common with these APIs.
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(250 * time.Millisecond):
	}
	return p.do(ctx, query)
}

func (p *httpProvider) do(ctx context.Context, query string) ([]model.SearchResult, error) {
	if p.baseURL == "" {
		return nil, apperr.Providerf(nil, "%s: no base URL configured", p.name)
	}
	u := fmt.Sprintf("%s/v1/search?%s", p.baseURL, url.Values{
		"type":  {string(p.category)},
		"query": {query},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperr.Providerf(err, "%s: build request", p.name)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		// The transport error may echo the full URL; it never contains
		// the key, which travels in a header.
		return nil, apperr.Providerf(err, "%s: request failed", p.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxProviderBody))
		return nil, apperr.Providerf(nil, "%s: upstream returned %d", p.name, resp.StatusCode)
	}

	var body struct {
		Results []model.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderBody)).Decode(&body); err != nil {
		return nil, apperr.Providerf(err, "%s: decode response", p.name)
	}
	for i := range body.Results {
		body.Results[i].Source = p.name
	}
	return body.Results, nil
}
