package model

import "testing"

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"Shop.Example.COM", "example.com"},
		{"https://shop.example.co.uk/checkout?x=1", "example.co.uk"},
		{"example.com.", "example.com"},
		{"example.com:8443", "example.com"},
		{"localhost", "localhost"},
	}
	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateEntity_NormalizesDomainLabel(t *testing.T) {
	e := &Entity{CaseID: "c", Type: EntityDomain, Label: " WWW.Example.ORG "}
	if err := ValidateEntity(e); err != nil {
		t.Fatalf("ValidateEntity: %v", err)
	}
	if e.Label != "example.org" {
		t.Errorf("Label = %q, want example.org", e.Label)
	}
}

func TestRiskLevelFlagged(t *testing.T) {
	tests := []struct {
		risk RiskLevel
		want bool
	}{
		{RiskUnknown, false},
		{RiskLow, false},
		{RiskMedium, false},
		{RiskHigh, true},
		{RiskCritical, true},
	}
	for _, tt := range tests {
		if got := tt.risk.Flagged(); got != tt.want {
			t.Errorf("%s.Flagged() = %v, want %v", tt.risk, got, tt.want)
		}
	}
}

func TestRedactedKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sk-live-abcdef9876", "****9876"},
		{"abcd", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		c := &APIConfig{APIKey: tt.key}
		if got := c.RedactedKey(); got != tt.want {
			t.Errorf("RedactedKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
