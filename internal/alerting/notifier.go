package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"flowsentry/pkg/models"
)

// Alert is the payload handed to a channel notifier.
type Alert struct {
	TenantID string    `json:"tenant_id"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Reason   string    `json:"reason"`
	Test     bool      `json:"test"`
	FiredAt  time.Time `json:"fired_at"`
}

// Notifier delivers an alert over one channel. Implementations must be
// safe for concurrent use.
type Notifier interface {
	Channel() models.AlertChannel
	Send(ctx context.Context, target string, alert Alert) error
}

// SMTPConfig configures the email channel.
type SMTPConfig struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

// EmailNotifier delivers alerts over SMTP.
type EmailNotifier struct {
	cfg SMTPConfig

	// send is swapped in tests to avoid a live SMTP connection.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates an EmailNotifier.
func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (n *EmailNotifier) Channel() models.AlertChannel { return models.ChannelEmail }

// Send delivers the alert to the given address.
func (n *EmailNotifier) Send(ctx context.Context, target string, alert Alert) error {
	if n.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", target)
	fmt.Fprintf(&msg, "Subject: %s\r\n", alert.Subject)
	msg.WriteString("\r\n")
	msg.WriteString(alert.Body)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if n.cfg.User != "" {
		auth = smtp.PlainAuth("", n.cfg.User, n.cfg.Pass, n.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.From, []string{target}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp delivery to %s failed: %w", target, err)
	}
	return nil
}

// WebhookNotifier posts alerts as JSON to a configured URL.
type WebhookNotifier struct {
	client *resty.Client
}

// NewWebhookNotifier creates a WebhookNotifier with retry and timeout
// settings applied to its HTTP client.
func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &WebhookNotifier{client: client}
}

func (n *WebhookNotifier) Channel() models.AlertChannel { return models.ChannelWebhook }

// Send posts the alert to the webhook URL. Non-2xx responses are delivery
// failures.
func (n *WebhookNotifier) Send(ctx context.Context, target string, alert Alert) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(target)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
