package email

import (
	"strings"
	"testing"

	"github.com/chroniclehq/chronicle/internal/events"
)

func TestCompose_activationHasTextAndHTMLParts(t *testing.T) {
	msg, ok := Compose(events.Event{
		Type:        events.TypeAccountRegistered,
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Link:        "https://chronicle.example.com/activate/tok123",
	})
	if !ok {
		t.Fatal("expected a message for account.registered")
	}
	if msg.To != "alice@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Subject != "Please activate your account!" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	for _, part := range []string{msg.Text, msg.HTML} {
		if !strings.Contains(part, "Alice") {
			t.Error("body does not greet the account holder")
		}
		if !strings.Contains(part, "https://chronicle.example.com/activate/tok123") {
			t.Error("body does not carry the activation link")
		}
	}
	if !strings.Contains(msg.HTML, "<a href=") {
		t.Error("HTML part has no activation anchor")
	}
}

func TestCompose_passwordResetSubject(t *testing.T) {
	msg, ok := Compose(events.Event{
		Type:  events.TypePasswordResetRequested,
		Email: "bob@example.com",
		Link:  "https://chronicle.example.com/reset/tok456",
	})
	if !ok {
		t.Fatal("expected a message for password reset")
	}
	if msg.Subject != "Reset Your Password" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "Hello there,") {
		t.Error("missing display name should fall back to a generic greeting")
	}
	if msg.HTML == "" {
		t.Error("reset mail has no HTML alternative")
	}
}

func TestCompose_ignoresEventsWithoutMail(t *testing.T) {
	if _, ok := Compose(events.Event{Type: events.TypeAccountDeactivated}); ok {
		t.Error("account.deactivated should not produce an email")
	}
}

func TestEncode_multipartAlternative(t *testing.T) {
	raw, err := encode("Chronicle <no-reply@chronicle.example.com>", Message{
		To:      "alice@example.com",
		Subject: "Please activate your account!",
		Text:    "plain greeting",
		HTML:    "<p>rich greeting</p>",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "Content-Type: multipart/alternative; boundary=") {
		t.Error("message is not multipart/alternative")
	}
	plain := strings.Index(s, "plain greeting")
	rich := strings.Index(s, "<p>rich greeting</p>")
	if plain == -1 || rich == -1 {
		t.Fatal("one of the body parts is missing")
	}
	if plain > rich {
		t.Error("text part must precede the HTML part")
	}
}

func TestEncode_textOnly(t *testing.T) {
	raw, err := encode("no-reply@chronicle.example.com", Message{
		To:      "bob@example.com",
		Subject: "Your Chronicle password was changed",
		Text:    "notice body",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "Content-Type: text/plain; charset=UTF-8") {
		t.Error("text-only message should be text/plain")
	}
	if strings.Contains(s, "multipart") {
		t.Error("text-only message must not be multipart")
	}
	if !strings.HasSuffix(s, "\r\n\r\nnotice body") {
		t.Error("body not separated from headers by a blank line")
	}
}
