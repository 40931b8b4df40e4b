package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// smsMaxLen keeps messages within a few SMS segments.
const smsMaxLen = 480

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Twilio texts the message.
type Twilio struct {
	api  messageCreator
	from string
	to   string
}

func NewTwilio(accountSID, authToken, from, to string) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{api: client.Api, from: from, to: to}
}

func (t *Twilio) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := msg.Text()
	if len(body) > smsMaxLen {
		body = body[:smsMaxLen-3] + "..."
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(t.to)
	params.SetFrom(t.from)
	params.SetBody(body)
	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("notify: twilio: %w", err)
	}
	return nil
}
