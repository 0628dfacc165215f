// internal/models/task.go
package models

import "time"

// Task is one concrete unit of work, optionally derived from a Template and
// optionally recurring. A non-recurring task never carries NextRunDate.
type Task struct {
	ID              string       `json:"id"`
	OrgID           string       `json:"orgId"`
	TemplateID      string       `json:"templateId,omitempty"`
	TemplateVersion int          `json:"templateVersion,omitempty"`
	ClientID        string       `json:"clientId,omitempty"`
	Title           string       `json:"title"`
	Recurring       bool         `json:"recurring"`
	Schedule        ScheduleRule `json:"schedule,omitempty"`
	NextRunDate     *time.Time   `json:"nextRunDate,omitempty"`
	Status          TaskStatus   `json:"status"`
	DueDate         *time.Time   `json:"dueDate,omitempty"`
	Priority        Priority     `json:"priority"`
	SLADays         int          `json:"slaDays"`
	Version         int64        `json:"version"` // optimistic concurrency token
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// TaskOccurrence is one scheduled instance of a recurring Task, unique per
// (TaskID, OccurrenceDate).
type TaskOccurrence struct {
	ID             string           `json:"id"`
	TaskID         string           `json:"taskId"`
	OrgID          string           `json:"orgId"`
	OccurrenceDate time.Time        `json:"occurrenceDate"`
	DueDate        time.Time        `json:"dueDate"`
	Status         OccurrenceStatus `json:"status"`
	Version        int64            `json:"version"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
