// Package notify delivers messages to screening participants over SMS and email.
package notify

import (
	"context"
	"errors"

	"github.com/apex/log"

	"health-screening/metrics"
)

// Channels accepted by Notifier.Send
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

var (
	// ErrChannelDisabled is returned when the requested channel is not configured
	ErrChannelDisabled = errors.New("notification channel disabled")
	// ErrNoRecipient is returned when the participant has no address for the channel
	ErrNoRecipient = errors.New("participant has no address for this channel")
)

// SMSSender sends a text message
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// Mailer sends an email
type Mailer interface {
	SendEmail(ctx context.Context, to, name, subject, body string) error
}

// Recipient is who a message goes to
type Recipient struct {
	Name  string
	Phone string
	Email string
}

// Notifier routes messages to the configured channels. A nil sender
// disables its channel.
type Notifier struct {
	sms   SMSSender
	email Mailer
}

// NewNotifier creates a notifier; either sender may be nil
func NewNotifier(sms SMSSender, email Mailer) *Notifier {
	return &Notifier{sms: sms, email: email}
}

// SMSEnabled reports whether SMS can be sent
func (n *Notifier) SMSEnabled() bool {
	return n != nil && n.sms != nil
}

// Send delivers message on channel and records the outcome
func (n *Notifier) Send(ctx context.Context, channel string, to Recipient, subject, message string) error {
	err := n.send(ctx, channel, to, subject, message)
	result := "sent"
	switch {
	case errors.Is(err, ErrChannelDisabled):
		result = "disabled"
	case err != nil:
		result = "failed"
		log.WithFields(log.Fields{"channel": channel}).Errorf("Failed to send notification: %v", err)
	}
	metrics.NotificationsTotal.WithLabelValues(channel, result).Inc()
	return err
}

func (n *Notifier) send(ctx context.Context, channel string, to Recipient, subject, message string) error {
	switch channel {
	case ChannelSMS:
		if !n.SMSEnabled() {
			return ErrChannelDisabled
		}
		if to.Phone == "" {
			return ErrNoRecipient
		}
		return n.sms.SendSMS(ctx, to.Phone, message)
	case ChannelEmail:
		if n == nil || n.email == nil {
			return ErrChannelDisabled
		}
		if to.Email == "" {
			return ErrNoRecipient
		}
		return n.email.SendEmail(ctx, to.Email, to.Name, subject, message)
	}
	return ErrChannelDisabled
}
