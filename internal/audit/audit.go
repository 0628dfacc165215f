// Package audit is the fire-and-forget audit sink. Recording failures must
// never block or roll back a core transition; implementations log and move on.
package audit

import (
	"context"
	"time"
)

// Entry is one recorded mutation.
type Entry struct {
	EntityType  string                 `json:"entityType"`
	EntityID    string                 `json:"entityId"`
	OrgID       string                 `json:"orgId"`
	Action      string                 `json:"action"`
	PerformedBy string                 `json:"performedBy"`
	OldValues   map[string]interface{} `json:"oldValues,omitempty"`
	NewValues   map[string]interface{} `json:"newValues,omitempty"`
	RecordedAt  time.Time              `json:"recordedAt"`
}

// Sink receives audit entries. Record must not return an error: the sink owns
// its failure handling.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// NopSink discards all entries.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}
