package notify

import (
	"context"
	"fmt"
	"gradewatch/lib/scrapers/jiaowu"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("notify")

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

type Options struct {
	Smtp SmtpConfig
	// SendTo lists the recipients of every notification.
	SendTo []string
}

// Mailer delivers grade reports and failure notices over smtp.
type Mailer struct {
	config Options
}

func NewMailer(options Options) Mailer {
	return Mailer{config: options}
}

// SendReport emails a full grade report, rendered as both plain text
// and html so mail clients can pick whichever they handle best.
func (m Mailer) SendReport(ctx context.Context, grade jiaowu.Grade) error {
	return m.send(ctx, "Grade Report", RenderText(grade), RenderHtml(grade))
}

// SendFailure emails a short plain text notice about something that
// went wrong while watching for new grades.
func (m Mailer) SendFailure(ctx context.Context, reason string, err error) error {
	return m.send(ctx, "Get Grade Error", fmt.Sprintf("%s: %s", reason, err), "")
}

func (m Mailer) send(ctx context.Context, subject, text, html string) error {
	ctx, span := tracer.Start(ctx, "send")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject))

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Grade Watch <%s>", m.config.Smtp.EmailAddress)
	mail.To = m.config.SendTo
	mail.Subject = subject
	mail.Text = []byte(text)
	if html != "" {
		mail.HTML = []byte(html)
	}

	err := mail.Send(
		fmt.Sprintf("%s:%d", m.config.Smtp.Server, m.config.Smtp.Port),
		smtp.PlainAuth("", m.config.Smtp.EmailAddress, m.config.Smtp.Password, m.config.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		// local relays often reject the AUTH extension outright, try
		// again without credentials
		err = mail.Send(fmt.Sprintf("%s:%d", m.config.Smtp.Server, m.config.Smtp.Port), nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}

	return nil
}
