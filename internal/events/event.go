// Package events carries account lifecycle notifications from the
// services that produce them to the listeners that act on them. There is
// no implicit global dispatch: producers hold an explicit Publisher and
// listeners are registered at wiring time.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an account lifecycle event. Values double as AMQP routing keys.
type Type string

const (
	TypeAccountRegistered      Type = "account.registered"
	TypeAccountActivated       Type = "account.activated"
	TypePasswordResetRequested Type = "account.password_reset_requested"
	TypePasswordChanged        Type = "account.password_changed"
	TypeAccountDeactivated     Type = "account.deactivated"
	TypeSocialLinked           Type = "account.social_linked"
)

// Event is a single lifecycle notification. Token and Link are set only
// for events that trigger a notification email (registration, password
// reset); they carry the single-use verification token and the URL the
// recipient should follow.
type Event struct {
	Type        Type      `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	AccountID   uuid.UUID `json:"account_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Token       string    `json:"token,omitempty"`
	Link        string    `json:"link,omitempty"`
}

// Publisher accepts lifecycle events. Publishing must never block the
// caller for long and must never fail a request: implementations log and
// drop on overflow or broker trouble.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
	Close()
}

// NoopPublisher discards all events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) {}
func (NoopPublisher) Close()                         {}
