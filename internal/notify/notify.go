// Package notify tells the user how a booking run ended.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/config"
)

type Message struct {
	Subject string
	Body    string
}

// Text is the message as a single block, for channels without a subject line.
func (m Message) Text() string {
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n\n" + m.Body
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// MessageFor describes a finished run.
func MessageFor(res booking.Result, runErr error) Message {
	date := res.Request.DateLabel
	switch {
	case runErr != nil || res.State == booking.StateFailed:
		reason := "unknown error"
		if runErr != nil {
			reason = runErr.Error()
		}
		return Message{
			Subject: fmt.Sprintf("Parking booking failed for %s", date),
			Body:    fmt.Sprintf("Carpark: %s\nState: %s\nError: %s", res.Request.Carpark, res.State, reason),
		}
	case res.State == booking.StateFullyBooked:
		body := fmt.Sprintf("Carpark: %s\nReason: %s", res.Request.Carpark, res.Reason)
		if res.Heuristic {
			body += "\n(no portal message; inferred from a missing booking summary)"
		}
		return Message{
			Subject: fmt.Sprintf("%s is fully booked on %s", res.Request.Carpark, date),
			Body:    body,
		}
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "Carpark: %s\n", res.Request.Carpark)
		if res.Bay.Reason != booking.BaySkipped && res.Bay.Reason != "" {
			fmt.Fprintf(&b, "Bay: %s (%s after %d checks)\n", res.Bay.Bay.Label, res.Bay.Reason, res.Bay.Iterations)
		}
		b.WriteString("\n")
		b.WriteString(res.Report)
		return Message{
			Subject: fmt.Sprintf("Parking booked for %s", date),
			Body:    strings.TrimRight(b.String(), "\n"),
		}
	}
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes the message to the logger. It is always part of the fan-out.
type Log struct {
	L *zap.Logger
}

func (l Log) Notify(_ context.Context, msg Message) error {
	l.L.Named("notify").Info(msg.Subject, zap.String("body", msg.Body))
	return nil
}

// New builds a Multi from every configured channel.
func New(cfg config.Notify, log *zap.Logger) (Multi, error) {
	if log == nil {
		log = zap.NewNop()
	}
	out := Multi{Log{L: log}}
	if cfg.Telegram.Token != "" {
		tg, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	if cfg.SendGrid.APIKey != "" {
		if cfg.SendGrid.From == "" || cfg.SendGrid.To == "" {
			return nil, fmt.Errorf("notify: sendgrid needs from and to addresses")
		}
		out = append(out, NewSendGrid(cfg.SendGrid.APIKey, cfg.SendGrid.From, cfg.SendGrid.To))
	}
	if cfg.Twilio.AccountSID != "" {
		if cfg.Twilio.From == "" || cfg.Twilio.To == "" {
			return nil, fmt.Errorf("notify: twilio needs from and to numbers")
		}
		out = append(out, NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, cfg.Twilio.To))
	}
	return out, nil
}
