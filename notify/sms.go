package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrInvalidPhone is returned when a number cannot be normalized to E.164
var ErrInvalidPhone = errors.New("invalid phone number")

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender sends transactional SMS through AWS SNS
type SNSSender struct {
	client   snsPublisher
	senderID string
}

// NewSNSSender creates an SMS sender from an AWS config
func NewSNSSender(cfg aws.Config, senderID string) *SNSSender {
	return &SNSSender{
		client:   sns.NewFromConfig(cfg),
		senderID: senderID,
	}
}

// SendSMS publishes message directly to phone
func (s *SNSSender) SendSMS(ctx context.Context, phone, message string) error {
	number, err := ToE164(phone)
	if err != nil {
		return err
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(number),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to publish sms: %w", err)
	}
	return nil
}

// ToE164 normalizes a US phone number. Numbers already carrying a leading +
// keep their country code.
func ToE164(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	switch {
	case strings.HasPrefix(phone, "+") && len(digits) >= 8 && len(digits) <= 15:
		return "+" + digits, nil
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
}
