// Package channel provides the uniform dispatch interface over all follow-up
// delivery channels. The reminder engine treats every channel the same way.
package channel

import (
	"context"

	"followup-engine/internal/models"
)

// Message is one outbound follow-up.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	Metadata  map[string]string
}

// Sender delivers a message on one channel and returns the provider's receipt
// id. Implementations block on network I/O and must honor ctx deadlines.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, msg Message) (string, error)
}

// Senders maps each enabled channel to its sender.
type Senders map[models.Channel]Sender
