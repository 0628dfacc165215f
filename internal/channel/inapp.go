// internal/channel/inapp.go
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"followup-engine/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InAppSender pushes a notification onto the recipient's redis inbox list.
// The UI layer drains the list; the engine only produces.
type InAppSender struct {
	rdb *redis.Client
}

type inAppNotification struct {
	ID        string            `json:"id"`
	Subject   string            `json:"subject,omitempty"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

func NewInAppSender(rdb *redis.Client) *InAppSender {
	return &InAppSender{rdb: rdb}
}

func (s *InAppSender) Channel() models.Channel {
	return models.ChannelInApp
}

func (s *InAppSender) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.New().String()
	payload, err := json.Marshal(inAppNotification{
		ID:        id,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Metadata:  msg.Metadata,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	key := "inbox:" + msg.Recipient
	if err := s.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return "", fmt.Errorf("push notification: %w", err)
	}

	return id, nil
}
