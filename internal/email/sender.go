package email

import "context"

// Message is a rendered notification email. Text is always present;
// HTML, when set, is sent as a multipart/alternative part.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
