// internal/channel/webhook.go
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"followup-engine/internal/common/httpclient"
	"followup-engine/internal/models"
)

// webhookSender posts messages to an HTTP provider endpoint. WhatsApp and
// voice providers share this shape; only the endpoint and channel name differ.
type webhookSender struct {
	channel models.Channel
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

type webhookPayload struct {
	To       string            `json:"to"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type webhookReceipt struct {
	ID string `json:"id"`
}

func NewWhatsAppSender(client *httpclient.Client, baseURL, apiKey string) Sender {
	return &webhookSender{channel: models.ChannelWhatsApp, client: client, baseURL: baseURL, apiKey: apiKey}
}

func NewVoiceSender(client *httpclient.Client, baseURL, apiKey string) Sender {
	return &webhookSender{channel: models.ChannelVoice, client: client, baseURL: baseURL, apiKey: apiKey}
}

func (s *webhookSender) Channel() models.Channel {
	return s.channel
}

func (s *webhookSender) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(webhookPayload{
		To:       msg.Recipient,
		Body:     msg.Body,
		Metadata: msg.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s provider: %w", s.channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s provider returned status %d", s.channel, resp.StatusCode)
	}

	var receipt webhookReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return "", fmt.Errorf("decode receipt: %w", err)
	}

	return receipt.ID, nil
}
