// Package notify provides notification functionality for the trading application.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"robotrader/internal/logging"
	"robotrader/internal/metrics"
	"robotrader/internal/resilience"
	"robotrader/internal/security"
)

// Notifier delivers a message to a set of recipients. Send never returns an
// error; failures are logged and reported as false.
type Notifier interface {
	Send(ctx context.Context, subject, body string, recipients []string) bool
}

// EmailConfig configures the SMTP notifier. Credentials come from the
// environment, not from the config file.
type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled" default:"true"`
	TradeAlerts bool   `mapstructure:"trade_alerts" default:"true"`
	SMTPHost    string `mapstructure:"smtp_host" default:"smtp.gmail.com" validate:"required"`
	SMTPPort    int    `mapstructure:"smtp_port" default:"465" validate:"gt=0,lt=65536"`

	Username   string   `mapstructure:"-"`
	Password   string   `mapstructure:"-"`
	Recipients []string `mapstructure:"-"`
}

type sendFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends notifications via email using SMTP.
type EmailNotifier struct {
	cfg     EmailConfig
	policy  *resilience.Policy
	metrics *metrics.Recorder
	logger  zerolog.Logger
	send    sendFunc
	now     func() time.Time
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg EmailConfig, policy *resilience.Policy, rec *metrics.Recorder, logger zerolog.Logger) *EmailNotifier {
	e := &EmailNotifier{
		cfg:     cfg,
		policy:  policy,
		metrics: rec,
		logger:  logging.WithComponent(logger, "email"),
		now:     time.Now,
	}
	e.send = e.sendWithTLS
	return e
}

// Send delivers the message. Empty recipients use the configured list.
func (e *EmailNotifier) Send(ctx context.Context, subject, body string, recipients []string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("subject", subject).Msg("Email send panicked")
			ok = false
		}
		e.metrics.RecordNotification(ok)
	}()

	if len(recipients) == 0 {
		recipients = e.cfg.Recipients
	}
	if len(recipients) == 0 {
		e.logger.Warn().Str("subject", subject).Msg("No email recipients configured")
		return false
	}

	msg := e.buildMessage(subject, body, recipients)
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)

	var auth smtp.Auth
	if e.cfg.Username != "" && e.cfg.Password != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
	}

	err := e.policy.Do(ctx, "email", func() error {
		return e.send(ctx, addr, auth, e.cfg.Username, recipients, msg)
	})
	if err != nil {
		e.logger.Warn().Str("error", security.MaskedError(err)).Str("subject", subject).Msg("Failed to send email")
		return false
	}
	e.logger.Info().Str("subject", subject).Int("recipients", len(recipients)).Msg("Email sent")
	return true
}

func (e *EmailNotifier) buildMessage(subject, body string, recipients []string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", e.cfg.Username)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	fmt.Fprintf(&sb, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(sb.String())
}

// sendWithTLS sends email using implicit TLS (port 465).
func (e *EmailNotifier) sendWithTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if e.cfg.SMTPPort != 465 {
		return smtp.SendMail(addr, auth, from, to, msg)
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: e.cfg.SMTPHost}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT command failed: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}
	return client.Quit()
}

// NoOpNotifier is a notifier that does nothing (for testing or disabled notifications).
type NoOpNotifier struct {
	logger zerolog.Logger
}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier(logger zerolog.Logger) *NoOpNotifier {
	return &NoOpNotifier{logger: logger}
}

// Send logs the subject and reports success.
func (n *NoOpNotifier) Send(_ context.Context, subject, _ string, _ []string) bool {
	n.logger.Debug().Str("subject", subject).Msg("Notifications disabled, skipping")
	return true
}

// MultiNotifier fans out to several notifiers. It succeeds if any does.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Send(ctx context.Context, subject, body string, recipients []string) bool {
	ok := false
	for _, n := range m.notifiers {
		if n.Send(ctx, subject, body, recipients) {
			ok = true
		}
	}
	return ok
}
