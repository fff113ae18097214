package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailSender delivers events through an unauthenticated SMTP relay of the
// kind that runs inside the cluster network.
type EmailSender struct {
	Relay string
	From  string
	To    []string

	// send is swapped out in tests.
	send func(addr, from string, to []string, msg []byte) error
}

func NewEmailSender(relay, from string, to []string) *EmailSender {
	return &EmailSender{
		Relay: relay,
		From:  from,
		To:    to,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (e *EmailSender) Name() string {
	return "email"
}

// SetSendFunc replaces the SMTP transport, for tests.
func (e *EmailSender) SetSendFunc(send func(addr, from string, to []string, msg []byte) error) {
	e.send = send
}

func (e *EmailSender) Send(ctx context.Context, event Event) error {
	if len(e.To) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	subject := fmt.Sprintf("[deploy] %s %s: %s", event.Environment, event.Tag, event.State)
	body := fmt.Sprintf(
		"Deployment %s for environment %s entered state %s.\r\n\r\n%s\r\n\r\nRun ID: %s\r\nTime: %s\r\n",
		event.Tag,
		event.Environment,
		event.State,
		event.Message,
		event.RunID,
		event.Timestamp.Format("2006-01-02 15:04:05 MST"),
	)

	message := strings.Join([]string{
		"From: " + e.From,
		"To: " + strings.Join(e.To, ", "),
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		done <- result{e.send(e.Relay, e.From, e.To, []byte(message))}
	}()

	select {
	case r := <-done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
