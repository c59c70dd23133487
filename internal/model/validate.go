package model

import (
	"strings"

	"github.com/osintlab/casedesk/internal/apperr"
	"golang.org/x/net/publicsuffix"
)

// Field length bounds for case records.
const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
)

// ValidateCase checks a case record before insertion.
func ValidateCase(c *Case) error {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return apperr.Validationf("title is required")
	}
	if len(title) > MaxTitleLen {
		return apperr.Validationf("title exceeds %d characters", MaxTitleLen)
	}
	if len(c.Description) > MaxDescriptionLen {
		return apperr.Validationf("description exceeds %d characters", MaxDescriptionLen)
	}
	if c.Status != "" && !c.Status.Valid() {
		return apperr.Validationf("unknown case status %q", c.Status)
	}
	return nil
}

// ValidateEntity checks an entity record before insertion. Domain labels
// are normalized in place to their registrable domain.
func ValidateEntity(e *Entity) error {
	if !e.Type.Valid() {
		return apperr.Validationf("unknown entity type %q", e.Type)
	}
	e.Label = strings.TrimSpace(e.Label)
	if e.Label == "" {
		return apperr.Validationf("label is required")
	}
	if e.RiskLevel != "" && !e.RiskLevel.Valid() {
		return apperr.Validationf("unknown risk level %q", e.RiskLevel)
	}
	if e.ConfidenceScore < 0 || e.ConfidenceScore > 100 {
		return apperr.Validationf("confidenceScore must be within [0,100], got %d", e.ConfidenceScore)
	}
	if e.Type == EntityDomain {
		e.Label = NormalizeDomain(e.Label)
	}
	return nil
}

// ValidateRelationship checks the field-level constraints of an edge.
// Existence and same-case membership of the endpoints are enforced by
// the store at commit time.
func ValidateRelationship(r *EntityRelationship) error {
	if r.SourceEntityID == "" || r.TargetEntityID == "" {
		return apperr.Validationf("source and target entities are required")
	}
	if r.SourceEntityID == r.TargetEntityID {
		return apperr.Validationf("relationship source and target must differ")
	}
	if !r.RelationshipType.Valid() {
		return apperr.Validationf("unknown relationship type %q", r.RelationshipType)
	}
	if r.Strength < 0 || r.Strength > 100 {
		return apperr.Validationf("strength must be within [0,100], got %d", r.Strength)
	}
	return nil
}

// ValidateAPIConfig checks a provider config record before insertion.
func ValidateAPIConfig(c *APIConfig) error {
	if !c.Category.Valid() {
		return apperr.Validationf("unknown category %q", c.Category)
	}
	if strings.TrimSpace(c.ProviderName) == "" {
		return apperr.Validationf("providerName is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return apperr.Validationf("apiKey is required")
	}
	if c.QuotaLimit < 0 {
		return apperr.Validationf("quotaLimit must not be negative")
	}
	return nil
}

// NormalizeDomain lowercases a domain label and reduces it to its
// registrable domain (eTLD+1). Labels that don't parse as a registrable
// domain are kept as entered; investigative data is messy and a lead is
// better stored raw than rejected.
func NormalizeDomain(label string) string {
	d := strings.ToLower(strings.TrimSpace(label))
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if idx := strings.IndexAny(d, "/:"); idx != -1 {
		d = d[:idx]
	}
	if reg, err := publicsuffix.EffectiveTLDPlusOne(d); err == nil {
		return reg
	}
	return d
}
