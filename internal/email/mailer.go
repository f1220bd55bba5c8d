package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/chroniclehq/chronicle/internal/events"
	"go.uber.org/zap"
)

// Mailer turns account lifecycle events into notification emails. It is
// registered as a bus listener when the in-process path is used, and its
// Handle method also backs the notify worker consuming the AMQP queue.
type Mailer struct {
	sender Sender
	logger *zap.Logger
}

// NewMailer creates a Mailer.
func NewMailer(sender Sender, logger *zap.Logger) *Mailer {
	return &Mailer{sender: sender, logger: logger}
}

// Listen is the bus listener form of Handle: delivery failures are
// logged, never surfaced, so the triggering request is unaffected.
func (m *Mailer) Listen(ctx context.Context, ev events.Event) {
	if err := m.Handle(ctx, ev); err != nil {
		m.logger.Warn("send notification email",
			zap.String("type", string(ev.Type)),
			zap.String("to", ev.Email),
			zap.Error(err),
		)
	}
}

// Handle sends the email for events that carry one; other event types
// are ignored. Errors propagate so queue consumers can requeue.
func (m *Mailer) Handle(ctx context.Context, ev events.Event) error {
	msg, ok := Compose(ev)
	if !ok {
		return nil
	}
	return m.sender.Send(ctx, msg)
}

type templateData struct {
	Name string
	Link string
}

// Compose builds the message for a notification-bearing event, with a
// plain-text body and an HTML alternative. Returns ok=false for event
// types that carry no email.
func Compose(ev events.Event) (Message, bool) {
	data := templateData{Name: ev.DisplayName, Link: ev.Link}
	if data.Name == "" {
		data.Name = "there"
	}

	var subject, tplName, text string
	switch ev.Type {
	case events.TypeAccountRegistered:
		subject = "Please activate your account!"
		tplName = "activation"
		text = fmt.Sprintf(
			"Hello %s,\n\nConfirm your email address to activate your Chronicle account:\n\n  %s\n\nThis link expires in 24 hours.\n\nIf you did not sign up, ignore this email.\n",
			data.Name, ev.Link,
		)

	case events.TypePasswordResetRequested:
		subject = "Reset Your Password"
		tplName = "password_reset"
		text = fmt.Sprintf(
			"Hello %s,\n\nWe received a request to reset your Chronicle password:\n\n  %s\n\nThis link expires in 1 hour.\n\nIf you did not request a reset, ignore this email; your password has not changed.\n",
			data.Name, ev.Link,
		)

	case events.TypePasswordChanged:
		subject = "Your Chronicle password was changed"
		tplName = "password_changed"
		text = fmt.Sprintf(
			"Hello %s,\n\nYour Chronicle password was just changed. If this was not you, request a password reset immediately.\n",
			data.Name,
		)

	default:
		return Message{}, false
	}

	msg := Message{To: ev.Email, Subject: subject, Text: text}

	// Templates are static and parsed at init; execution only fails on a
	// programming error, in which case the text part still goes out.
	var html strings.Builder
	if err := templates.ExecuteTemplate(&html, tplName, data); err == nil {
		msg.HTML = html.String()
	}
	return msg, true
}
