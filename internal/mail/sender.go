// Package mail delivers transactional email through one of several providers.
package mail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/resilience"
)

// ErrMisconfigured is returned by NewSender when the selected provider lacks
// required settings.
var ErrMisconfigured = errors.New("mail provider misconfigured")

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSender picks the backend named by cfg.Provider: mailgun, sendgrid, smtp
// or log.
func NewSender(cfg config.MailConfig, logger *zap.SugaredLogger) (Sender, error) {
	switch cfg.Provider {
	case "mailgun":
		if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" || cfg.From == "" {
			return nil, fmt.Errorf("%w: mailgun needs MAILGUN_DOMAIN, MAILGUN_API_KEY and MAIL_FROM", ErrMisconfigured)
		}
		return NewMailgunSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.From), nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" || cfg.From == "" {
			return nil, fmt.Errorf("%w: sendgrid needs SENDGRID_API_KEY and MAIL_FROM", ErrMisconfigured)
		}
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.From), nil
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPPort == "" || cfg.From == "" {
			return nil, fmt.Errorf("%w: smtp needs SMTP_HOST, SMTP_PORT and MAIL_FROM", ErrMisconfigured)
		}
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.From), nil
	case "", "log":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrMisconfigured, cfg.Provider)
	}
}

// LogSender writes mail to the logger instead of delivering it. Local
// development only.
type LogSender struct {
	logger *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Infow("mail (not delivered)", "to", to, "subject", subject, "body", body)
	return nil
}

// BreakingSender guards a Sender with a circuit breaker. Failures are
// returned to the caller, which decides whether they are fatal.
type BreakingSender struct {
	next    Sender
	breaker *resilience.Breaker
}

func NewBreakingSender(next Sender, b *resilience.Breaker) *BreakingSender {
	return &BreakingSender{next: next, breaker: b}
}

func (s *BreakingSender) Send(ctx context.Context, to, subject, body string) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.next.Send(ctx, to, subject, body)
	})
}
