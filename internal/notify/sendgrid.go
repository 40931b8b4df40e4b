package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendFunc func(ctx context.Context, m *mail.SGMailV3) (status int, body string, err error)

// SendGrid e-mails the message.
type SendGrid struct {
	from *mail.Email
	to   *mail.Email
	send sendFunc
}

func NewSendGrid(apiKey, from, to string) *SendGrid {
	client := sendgrid.NewSendClient(apiKey)
	return &SendGrid{
		from: mail.NewEmail("baybook", from),
		to:   mail.NewEmail("", to),
		send: func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}
}

func (s *SendGrid) Notify(ctx context.Context, msg Message) error {
	m := mail.NewSingleEmail(s.from, msg.Subject, s.to, msg.Body, "")
	status, body, err := s.send(ctx, m)
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("notify: sendgrid: status %d: %s", status, body)
	}
	return nil
}
