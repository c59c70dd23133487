// Package alert emails investigators when a flagged entity lands on a
// monitored case.
package alert

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/osintlab/casedesk/internal/model"
)

// EmailConfig holds settings for composing and sending alert emails.
type EmailConfig struct {
	FromAddress string
	FromName    string
	ToAddress   string
	// SandboxMode when true prevents actual email delivery via SendGrid.
	SandboxMode bool
	// SendGridAPIKey is the API key for SendGrid.
	SendGridAPIKey string
}

// SendGridSender is the interface for sending emails via SendGrid.
// This abstraction allows for easy mocking in tests.
type SendGridSender interface {
	Send(email *mail.SGMailV3) (*SendResult, error)
}

// SendResult contains the result of sending an email.
type SendResult struct {
	StatusCode int
	MessageID  string
}

// RealSendGridSender sends emails via the SendGrid API.
type RealSendGridSender struct {
	APIKey string
}

// Send dispatches an email through the SendGrid API.
func (s *RealSendGridSender) Send(email *mail.SGMailV3) (*SendResult, error) {
	client := sendgrid.NewSendClient(s.APIKey)
	resp, err := client.Send(email)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	messageID := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	return &SendResult{
		StatusCode: resp.StatusCode,
		MessageID:  messageID,
	}, nil
}

// ShouldAlert reports whether adding or escalating an entity warrants an
// email: the case is being monitored and the entity carries a flagged
// risk level.
func ShouldAlert(c *model.Case, e *model.Entity) bool {
	return c.Status == model.CaseMonitoring && e.RiskLevel.Flagged()
}

// ComposeAlert builds the alert email for a flagged entity.
func ComposeAlert(cfg EmailConfig, c *model.Case, e *model.Entity) *mail.SGMailV3 {
	from := mail.NewEmail(cfg.FromName, cfg.FromAddress)
	to := mail.NewEmail("", cfg.ToAddress)

	subject := fmt.Sprintf("[%s] %s risk entity on case %q", strings.ToUpper(string(e.RiskLevel)), e.Type, c.Title)
	body := composeBody(c, e)

	message := mail.NewSingleEmail(from, subject, to, body, "")
	if cfg.SandboxMode {
		settings := mail.NewMailSettings()
		settings.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(settings)
	}
	return message
}

func composeBody(c *model.Case, e *model.Entity) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("A %s-risk %s entity was recorded on monitored case %q.\n\n", e.RiskLevel, e.Type, c.Title))
	b.WriteString(fmt.Sprintf("Label:      %s\n", e.Label))
	b.WriteString(fmt.Sprintf("Confidence: %d\n", e.ConfidenceScore))
	if e.SourceAttribution != "" {
		b.WriteString(fmt.Sprintf("Source:     %s\n", e.SourceAttribution))
	}
	if len(e.Data) > 0 {
		b.WriteString("\nAttributes:\n")
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("  - %s: %s\n", k, e.Data[k]))
		}
	}
	b.WriteString(fmt.Sprintf("\nCase: %s\nEntity: %s\nRecorded: %s\n", c.ID, e.ID, time.Now().UTC().Format(time.RFC3339)))

	return b.String()
}

// Notifier sends risk alerts. A nil *Notifier is a no-op, which keeps
// the handlers free of config checks when alerting is not set up.
type Notifier struct {
	cfg    EmailConfig
	sender SendGridSender
}

// NewNotifier builds a Notifier; pass a custom sender for tests, or nil
// to use the real SendGrid client.
func NewNotifier(cfg EmailConfig, sender SendGridSender) *Notifier {
	if sender == nil {
		sender = &RealSendGridSender{APIKey: cfg.SendGridAPIKey}
	}
	return &Notifier{cfg: cfg, sender: sender}
}

// NotifyRiskEntity emails the configured investigator about a flagged
// entity on a monitored case. It is a no-op when alerting does not
// apply to the given case and entity.
func (n *Notifier) NotifyRiskEntity(c *model.Case, e *model.Entity) (*SendResult, error) {
	if n == nil {
		return nil, nil
	}
	if !ShouldAlert(c, e) {
		return nil, nil
	}
	return n.sender.Send(ComposeAlert(n.cfg, c, e))
}
