package email

import (
	"context"
	"errors"
)

// Message is a single HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipients = errors.New("email_no_recipients")

type NoOpProvider struct{}

func (NoOpProvider) Name() string { return "noop" }

func (NoOpProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}
