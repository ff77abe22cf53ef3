package email

import (
	"context"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Service is the mail capability boundary. Implementations return an error on
// transport failure; retry policy lives with the caller.
type Service interface {
	Send(ctx context.Context, msg *Message) error
}
