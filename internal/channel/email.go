// internal/channel/email.go
package channel

import (
	"context"
	"fmt"

	"followup-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the slice of the SES client used here, kept as an interface for
// mocking.
type SESAPI interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// EmailSender delivers reminders over email via AWS SES.
type EmailSender struct {
	ses  SESAPI
	from string
}

func NewEmailSender(sesClient SESAPI, fromEmail string) *EmailSender {
	return &EmailSender{ses: sesClient, from: fromEmail}
}

func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, msg Message) (string, error) {
	subject := msg.Subject
	if subject == "" {
		subject = "Follow-up reminder"
	}

	out, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.Recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Body)},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}

	return aws.ToString(out.MessageId), nil
}
