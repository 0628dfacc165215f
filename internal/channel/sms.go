// internal/channel/sms.go
package channel

import (
	"context"
	"fmt"

	"followup-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the slice of the SNS client used here, kept as an interface for
// mocking.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SMSSender delivers reminders over SMS via AWS SNS.
type SMSSender struct {
	sns      SNSAPI
	senderID string
}

func NewSMSSender(snsClient SNSAPI, senderID string) *SMSSender {
	return &SMSSender{sns: snsClient, senderID: senderID}
}

func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, msg Message) (string, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(msg.Recipient),
		Message:     aws.String(msg.Body),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
		}
	}

	out, err := s.sns.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}

	return aws.ToString(out.MessageId), nil
}
