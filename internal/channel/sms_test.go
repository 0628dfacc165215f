// internal/channel/sms_test.go
package channel

import (
	"context"
	"errors"
	"testing"

	"followup-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	input *sns.PublishInput
	err   error
}

func (m *mockSNS) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-msg-1")}, nil
}

func TestSMSSender_Send(t *testing.T) {
	mock := &mockSNS{}
	sender := NewSMSSender(mock, "FOLLOWUP")

	require.Equal(t, models.ChannelSMS, sender.Channel())

	id, err := sender.Send(context.Background(), Message{
		Recipient: "+919876543210",
		Body:      "Your GST filing documents are due.",
	})
	require.NoError(t, err)
	require.Equal(t, "sns-msg-1", id)

	require.Equal(t, "+919876543210", aws.ToString(mock.input.PhoneNumber))
	require.Equal(t, "Your GST filing documents are due.", aws.ToString(mock.input.Message))

	attr, ok := mock.input.MessageAttributes["AWS.SNS.SMS.SenderID"]
	require.True(t, ok)
	require.Equal(t, "FOLLOWUP", aws.ToString(attr.StringValue))
}

func TestSMSSender_NoSenderID(t *testing.T) {
	mock := &mockSNS{}
	sender := NewSMSSender(mock, "")

	_, err := sender.Send(context.Background(), Message{Recipient: "+911111111111", Body: "hi"})
	require.NoError(t, err)
	require.Empty(t, mock.input.MessageAttributes)
}

func TestSMSSender_ProviderError(t *testing.T) {
	mock := &mockSNS{err: errors.New("opted out")}
	sender := NewSMSSender(mock, "")

	_, err := sender.Send(context.Background(), Message{Recipient: "+911111111111", Body: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "sns publish")
}
