// Package notify delivers the registration confirmation email. A Sender
// transports one Message; SMTPSender is the production transport,
// RateLimited paces any Sender and LogSender only logs.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Message is one outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a Message. A returned error wrapped with
// job.MarkPermanent means the message can never be delivered; any other
// error is worth retrying.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// LogSender logs messages instead of sending them. It is used when no
// SMTP host is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the envelope of m.
func (s LogSender) Send(ctx context.Context, m Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email not sent, no SMTP transport configured",
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
	)
	return nil
}

var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// sanitizeHeader strips CR and LF so a value cannot inject headers.
func sanitizeHeader(s string) string { return headerSanitizer.Replace(s) }
