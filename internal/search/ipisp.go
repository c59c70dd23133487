package search

import (
	"context"
	"fmt"
	"net"

	"github.com/ammario/ipisp/v2"
	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
)

// ASNClient abstracts IP-to-ASN lookups for testing.
type ASNClient interface {
	LookupIP(ctx context.Context, ip net.IP) (*ipisp.Response, error)
}

// cymruClient wraps ipisp for Team Cymru DNS lookups.
type cymruClient struct{}

func (c *cymruClient) LookupIP(ctx context.Context, ip net.IP) (*ipisp.Response, error) {
	return ipisp.LookupIP(ctx, ip)
}

// NewASNClient returns an ASNClient backed by Team Cymru DNS.
func NewASNClient() ASNClient {
	return &cymruClient{}
}

// ipProvider is the built-in key-less provider for the ip category.
// It attributes an address to its network over Team Cymru DNS.
type ipProvider struct {
	client ASNClient
}

func (p *ipProvider) Name() string { return "team-cymru" }

func (p *ipProvider) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	parsed := net.ParseIP(query)
	if parsed == nil {
		return nil, apperr.Validationf("%q is not an IP address", query)
	}

	resp, err := p.client.LookupIP(ctx, parsed)
	if err != nil {
		return nil, apperr.Providerf(err, "asn lookup for %s", query)
	}

	data := map[string]string{
		"asn": fmt.Sprintf("AS%d", resp.ASN),
		"isp": resp.ISPName,
	}
	if resp.Range != nil {
		data["bgpPrefix"] = resp.Range.String()
	}
	if resp.Country != "" {
		data["country"] = resp.Country
	}
	return []model.SearchResult{{
		Type:       model.EntityIP,
		Title:      query,
		Subtitle:   fmt.Sprintf("AS%d %s", resp.ASN, resp.ISPName),
		Source:     p.Name(),
		Confidence: 95,
		Data:       data,
	}}, nil
}
