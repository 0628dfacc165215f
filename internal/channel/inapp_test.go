// internal/channel/inapp_test.go
package channel

import (
	"context"
	"encoding/json"
	"testing"

	"followup-engine/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestInAppSender_Send(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sender := NewInAppSender(rdb)
	require.Equal(t, models.ChannelInApp, sender.Channel())

	id, err := sender.Send(context.Background(), Message{
		Recipient: "user-1",
		Subject:   "Follow-up: Aadhaar Card",
		Body:      "Document is still pending.",
		Metadata:  map[string]string{"requestId": "req-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	items, err := mr.List("inbox:user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var n inAppNotification
	require.NoError(t, json.Unmarshal([]byte(items[0]), &n))
	require.Equal(t, id, n.ID)
	require.Equal(t, "Follow-up: Aadhaar Card", n.Subject)
	require.Equal(t, "Document is still pending.", n.Body)
	require.Equal(t, "req-1", n.Metadata["requestId"])
	require.False(t, n.CreatedAt.IsZero())
}

func TestInAppSender_NewestFirst(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sender := NewInAppSender(rdb)
	ctx := context.Background()

	_, err := sender.Send(ctx, Message{Recipient: "user-1", Body: "first"})
	require.NoError(t, err)
	_, err = sender.Send(ctx, Message{Recipient: "user-1", Body: "second"})
	require.NoError(t, err)

	items, err := mr.List("inbox:user-1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	var head inAppNotification
	require.NoError(t, json.Unmarshal([]byte(items[0]), &head))
	require.Equal(t, "second", head.Body, "inbox drains newest first")
}
