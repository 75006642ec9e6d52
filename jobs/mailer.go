package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"
)

// Mailer delivers queued emails over SMTP.
type Mailer struct {
	addr   string
	from   string
	auth   smtp.Auth
	logger *slog.Logger
}

// NewMailer constructs a Mailer. Auth is skipped when username is empty,
// which matches local Mailpit-style servers.
func NewMailer(host string, port int, username, password, from string, logger *slog.Logger) *Mailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &Mailer{
		addr:   fmt.Sprintf("%s:%d", host, port),
		from:   from,
		auth:   auth,
		logger: logger,
	}
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{payload.To}, formatMessage(m.from, payload)); err != nil {
		return fmt.Errorf("send mail to %s: %w", payload.To, err)
	}
	m.logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

func formatMessage(from string, payload SendEmailPayload) []byte {
	return []byte("From: " + from + "\r\n" +
		"To: " + payload.To + "\r\n" +
		"Subject: " + payload.Subject + "\r\n" +
		"\r\n" +
		payload.Body + "\r\n")
}
