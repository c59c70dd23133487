package search

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/openrdap/rdap"
	"github.com/osintlab/casedesk/internal/apperr"
	"github.com/osintlab/casedesk/internal/model"
)

// RDAPClient abstracts RDAP lookups for testing.
type RDAPClient interface {
	LookupDomain(ctx context.Context, domain string) (*rdap.Domain, error)
	LookupIP(ctx context.Context, ip string) (*rdap.IPNetwork, error)
}

// defaultRDAPClient uses the openrdap library with the standard
// IANA bootstrap.
type defaultRDAPClient struct{}

func (c *defaultRDAPClient) LookupDomain(ctx context.Context, domain string) (*rdap.Domain, error) {
	client := &rdap.Client{}
	req := &rdap.Request{
		Type:  rdap.DomainRequest,
		Query: domain,
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	d, ok := resp.Object.(*rdap.Domain)
	if !ok {
		return nil, fmt.Errorf("rdap: unexpected response type for domain %s", domain)
	}
	return d, nil
}

func (c *defaultRDAPClient) LookupIP(ctx context.Context, ip string) (*rdap.IPNetwork, error) {
	client := &rdap.Client{}
	req := &rdap.Request{
		Type:  rdap.IPRequest,
		Query: ip,
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	ipNet, ok := resp.Object.(*rdap.IPNetwork)
	if !ok {
		return nil, fmt.Errorf("rdap: unexpected response type for IP %s", ip)
	}
	return ipNet, nil
}

// NewRDAPClient returns an RDAPClient backed by the standard RDAP bootstrap.
func NewRDAPClient() RDAPClient {
	return &defaultRDAPClient{}
}

// domainProvider is the built-in key-less provider for the domain
// category. It resolves registration data over RDAP.
type domainProvider struct {
	client RDAPClient
}

func (p *domainProvider) Name() string { return "rdap" }

func (p *domainProvider) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	domain := model.NormalizeDomain(query)
	if domain == "" {
		return nil, apperr.Validationf("domain query is empty")
	}

	d, err := p.client.LookupDomain(ctx, domain)
	if err != nil {
		return nil, apperr.Providerf(err, "rdap lookup for %s", domain)
	}

	data := map[string]string{}
	if len(d.Status) > 0 {
		data["status"] = strings.Join(d.Status, ",")
	}
	for _, ev := range d.Events {
		switch strings.ToLower(ev.Action) {
		case "registration":
			data["registered"] = ev.Date
		case "expiration":
			data["expires"] = ev.Date
		case "last changed":
			data["updated"] = ev.Date
		}
	}
	var nameservers []string
	for _, ns := range d.Nameservers {
		if ns.LDHName != "" {
			nameservers = append(nameservers, strings.ToLower(ns.LDHName))
		}
	}
	if len(nameservers) > 0 {
		data["nameservers"] = strings.Join(nameservers, ",")
	}
	if registrar := extractRegistrar(d.Entities); registrar != "" {
		data["registrar"] = registrar
	}
	if email := extractAbuseContact(d.Entities); email != "" {
		data["abuseContact"] = email
	}

	name := d.LDHName
	if name == "" {
		name = domain
	}
	return []model.SearchResult{{
		Type:       model.EntityDomain,
		Title:      strings.ToLower(name),
		Subtitle:   data["registrar"],
		Source:     p.Name(),
		Confidence: 90,
		Data:       data,
	}}, nil
}

// ipNetworkProvider complements the ASN lookup for the ip category with
// the registry's view of the network: holder, handle, and abuse contact.
type ipNetworkProvider struct {
	client RDAPClient
}

func (p *ipNetworkProvider) Name() string { return "rdap" }

func (p *ipNetworkProvider) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	if net.ParseIP(query) == nil {
		return nil, apperr.Validationf("%q is not an IP address", query)
	}

	ipNet, err := p.client.LookupIP(ctx, query)
	if err != nil {
		return nil, apperr.Providerf(err, "rdap lookup for %s", query)
	}

	data := map[string]string{}
	if ipNet.Handle != "" {
		data["handle"] = ipNet.Handle
	}
	if ipNet.StartAddress != "" && ipNet.EndAddress != "" {
		data["range"] = ipNet.StartAddress + "-" + ipNet.EndAddress
	}
	if ipNet.Country != "" {
		data["country"] = ipNet.Country
	}
	if email := extractAbuseContact(ipNet.Entities); email != "" {
		data["abuseContact"] = email
	}

	return []model.SearchResult{{
		Type:       model.EntityIP,
		Title:      query,
		Subtitle:   ipNet.Name,
		Source:     p.Name(),
		Confidence: 90,
		Data:       data,
	}}, nil
}

// extractRegistrar walks the RDAP entity tree for a registrar name.
func extractRegistrar(entities []rdap.Entity) string {
	for _, entity := range entities {
		for _, role := range entity.Roles {
			if strings.EqualFold(role, "registrar") && entity.VCard != nil {
				if name := entity.VCard.Name(); name != "" {
					return name
				}
			}
		}
		if name := extractRegistrar(entity.Entities); name != "" {
			return name
		}
	}
	return ""
}

// extractAbuseContact walks the RDAP entity tree looking for an abuse
// role with an email in the vCard.
func extractAbuseContact(entities []rdap.Entity) string {
	for _, entity := range entities {
		for _, role := range entity.Roles {
			if strings.EqualFold(role, "abuse") && entity.VCard != nil {
				if email := entity.VCard.Email(); email != "" {
					return email
				}
			}
		}
		if email := extractAbuseContact(entity.Entities); email != "" {
			return email
		}
	}
	return ""
}
