// internal/channel/webhook_test.go
package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"followup-engine/internal/common/httpclient"
	"followup-engine/internal/models"

	"github.com/stretchr/testify/require"
)

func TestWhatsAppSender_Send(t *testing.T) {
	var got webhookPayload
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(webhookReceipt{ID: "wa-receipt-1"})
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(httpclient.NewClient(5*time.Second), srv.URL, "secret-key")
	require.Equal(t, models.ChannelWhatsApp, sender.Channel())

	id, err := sender.Send(context.Background(), Message{
		Recipient: "+919876543210",
		Body:      "Bank statement still pending.",
		Metadata:  map[string]string{"reminderId": "rem-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "wa-receipt-1", id)

	require.Equal(t, "/messages", gotPath)
	require.Equal(t, "Bearer secret-key", gotAuth)
	require.Equal(t, "+919876543210", got.To)
	require.Equal(t, "Bank statement still pending.", got.Body)
	require.Equal(t, "rem-1", got.Metadata["reminderId"])
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sender := NewVoiceSender(httpclient.NewClient(5*time.Second), srv.URL, "secret-key")
	require.Equal(t, models.ChannelVoice, sender.Channel())

	_, err := sender.Send(context.Background(), Message{Recipient: "+911111111111", Body: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 429")
}

func TestWebhookSender_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only observes the client disconnect (and cancels
		// r.Context()) after the request body is consumed; without this
		// drain the deferred srv.Close() deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(httpclient.NewClient(5*time.Second), srv.URL, "secret-key")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := sender.Send(ctx, Message{Recipient: "+911111111111", Body: "hi"})
	require.Error(t, err)
}
