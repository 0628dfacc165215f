// internal/models/reminder.go
package models

import "time"

// DefaultMaxRetries is applied when a reminder is scheduled without an
// explicit retry budget.
const DefaultMaxRetries = 3

// Reminder is one scheduled or dispatched follow-up. RetryCount never exceeds
// MaxRetries; once Status is cancelled, or failed with RetryCount at
// MaxRetries, no further dispatch attempts occur.
type Reminder struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"orgId"`
	Type        ReminderType   `json:"type"`
	RequestID   string         `json:"requestId,omitempty"`
	ItemID      string         `json:"itemId,omitempty"`
	TaskID      string         `json:"taskId,omitempty"`
	Recipient   string         `json:"recipient"`
	Channel     Channel        `json:"channel"`
	Subject     string         `json:"subject,omitempty"`
	Body        string         `json:"body"`
	ScheduledAt time.Time      `json:"scheduledAt"`
	SentAt      *time.Time     `json:"sentAt,omitempty"`
	Status      ReminderStatus `json:"status"`
	RetryCount  int            `json:"retryCount"`
	MaxRetries  int            `json:"maxRetries"`
	Cycle       int            `json:"cycle"` // item request cycle this reminder belongs to
	Version     int64          `json:"version"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
