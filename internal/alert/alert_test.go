package alert

import (
	"strings"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/osintlab/casedesk/internal/model"
)

type fakeSender struct {
	sent []*mail.SGMailV3
}

func (f *fakeSender) Send(email *mail.SGMailV3) (*SendResult, error) {
	f.sent = append(f.sent, email)
	return &SendResult{StatusCode: 202, MessageID: "msg-1"}, nil
}

func TestShouldAlert(t *testing.T) {
	tests := []struct {
		name   string
		status model.CaseStatus
		risk   model.RiskLevel
		want   bool
	}{
		{"monitored critical", model.CaseMonitoring, model.RiskCritical, true},
		{"monitored high", model.CaseMonitoring, model.RiskHigh, true},
		{"monitored medium", model.CaseMonitoring, model.RiskMedium, false},
		{"active critical", model.CaseActive, model.RiskCritical, false},
		{"archived high", model.CaseArchived, model.RiskHigh, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &model.Case{Status: tt.status}
			e := &model.Entity{RiskLevel: tt.risk}
			if got := ShouldAlert(c, e); got != tt.want {
				t.Errorf("ShouldAlert = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotifyRiskEntity(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(EmailConfig{
		FromAddress: "alerts@example.com",
		FromName:    "Case Desk",
		ToAddress:   "analyst@example.com",
	}, sender)

	c := &model.Case{ID: "case-1", Title: "Fraud Ring A", Status: model.CaseMonitoring}
	e := &model.Entity{
		ID: "ent-1", CaseID: "case-1", Type: model.EntityWallet,
		Label: "bc1qxyz", RiskLevel: model.RiskCritical, ConfidenceScore: 85,
	}

	res, err := n.NotifyRiskEntity(c, e)
	if err != nil {
		t.Fatalf("NotifyRiskEntity: %v", err)
	}
	if res == nil || res.StatusCode != 202 {
		t.Fatalf("result = %+v, want 202", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if !strings.Contains(msg.Subject, "CRITICAL") || !strings.Contains(msg.Subject, "Fraud Ring A") {
		t.Errorf("Subject = %q", msg.Subject)
	}
	body := msg.Content[0].Value
	if !strings.Contains(body, "bc1qxyz") {
		t.Errorf("body missing entity label: %q", body)
	}

	// Low-risk entity on the same case: nothing sent.
	quiet := &model.Entity{RiskLevel: model.RiskLow, Type: model.EntityEmail, Label: "x@example.com"}
	if _, err := n.NotifyRiskEntity(c, quiet); err != nil {
		t.Fatalf("NotifyRiskEntity: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d emails, want still 1", len(sender.sent))
	}
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	c := &model.Case{Status: model.CaseMonitoring}
	e := &model.Entity{RiskLevel: model.RiskCritical}
	res, err := n.NotifyRiskEntity(c, e)
	if err != nil || res != nil {
		t.Errorf("nil notifier: got (%v, %v), want (nil, nil)", res, err)
	}
}
