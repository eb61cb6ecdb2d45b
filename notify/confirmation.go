package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	texttemplate "text/template"
	"time"

	"github.com/xraph/intake/job"
)

// ConfirmationSubject is the subject line of the confirmation email.
const ConfirmationSubject = "Registration Confirmation"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	confirmationHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/confirmation.html.tmpl"))
	confirmationText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/confirmation.txt.tmpl"))
)

type confirmationData struct {
	Name  string
	Email string
	Year  int
}

// RenderConfirmation builds the confirmation message for p.
func RenderConfirmation(p job.ConfirmationPayload, now time.Time) (Message, error) {
	data := confirmationData{Name: p.DisplayName, Email: p.Recipient, Year: now.Year()}

	var html, text bytes.Buffer
	if err := confirmationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render confirmation html: %w", err)
	}
	if err := confirmationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render confirmation text: %w", err)
	}
	return Message{
		To:      p.Recipient,
		ToName:  p.DisplayName,
		Subject: ConfirmationSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// ConfirmationDefinition is the job definition that delivers confirmation
// emails through sender. Redelivery sends the email again, which is
// acceptable for a confirmation.
func ConfirmationDefinition(sender Sender, logger *slog.Logger, opts ...job.Option) *job.Definition[job.ConfirmationPayload] {
	if logger == nil {
		logger = slog.Default()
	}
	return job.NewDefinition(job.KindConfirmationEmail, func(ctx context.Context, p job.ConfirmationPayload) error {
		if err := p.Validate(); err != nil {
			return job.MarkPermanent(err)
		}
		m, err := RenderConfirmation(p, time.Now())
		if err != nil {
			return job.MarkPermanent(err)
		}
		if err := sender.Send(ctx, m); err != nil {
			return err
		}
		logger.InfoContext(ctx, "confirmation email sent",
			slog.String("to", p.Recipient),
			slog.String("patient_id", p.SourceRecordID),
		)
		return nil
	}, opts...)
}
