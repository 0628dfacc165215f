// Package store defines the storage contracts consumed by the engine and the
// postgres implementation behind them. Every Update method is an atomic
// conditional update: the write succeeds only when the stored version matches
// expectedVersion, otherwise CONCURRENT_MODIFICATION is returned and nothing
// is overwritten.
package store

import (
	"context"
	"time"

	"followup-engine/internal/models"
)

type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *models.Template) error
	GetTemplate(ctx context.Context, orgID, id string) (*models.Template, error)
	UpdateTemplate(ctx context.Context, t *models.Template, expectedVersion int) error
}

type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, orgID, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task, expectedVersion int64) error
	// ListDueTasks returns recurring tasks with next_run_date <= now.
	ListDueTasks(ctx context.Context, orgID string, now time.Time) ([]*models.Task, error)
}

type OccurrenceStore interface {
	// CreateOccurrence returns DUPLICATE_ENTITY when an occurrence with the
	// same (task_id, occurrence_date) already exists.
	CreateOccurrence(ctx context.Context, o *models.TaskOccurrence) error
	GetOccurrence(ctx context.Context, orgID, id string) (*models.TaskOccurrence, error)
	UpdateOccurrence(ctx context.Context, o *models.TaskOccurrence, expectedVersion int64) error
	ListOccurrences(ctx context.Context, orgID, taskID string) ([]*models.TaskOccurrence, error)
	// ListOverdueOccurrences returns pending/in_progress occurrences with
	// due_date < now.
	ListOverdueOccurrences(ctx context.Context, orgID string, now time.Time) ([]*models.TaskOccurrence, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.DataRequest) error
	GetRequest(ctx context.Context, orgID, id string) (*models.DataRequest, error)
	UpdateRequest(ctx context.Context, r *models.DataRequest, expectedVersion int64) error

	CreateItem(ctx context.Context, it *models.RequestChecklistItem) error
	GetItem(ctx context.Context, orgID, id string) (*models.RequestChecklistItem, error)
	UpdateItem(ctx context.Context, it *models.RequestChecklistItem, expectedVersion int64) error
	ListItems(ctx context.Context, orgID, requestID string) ([]*models.RequestChecklistItem, error)
}

type ReminderStore interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, orgID, id string) (*models.Reminder, error)
	UpdateReminder(ctx context.Context, r *models.Reminder, expectedVersion int64) error
	// ListDueReminders returns pending reminders with scheduled_at <= now.
	ListDueReminders(ctx context.Context, orgID string, now time.Time) ([]*models.Reminder, error)
	// ListOpenReminders returns pending reminders for a request, narrowed to
	// one item when itemID is non-empty.
	ListOpenReminders(ctx context.Context, orgID, requestID, itemID string) ([]*models.Reminder, error)
}

type ApprovalStore interface {
	CreateApproval(ctx context.Context, a *models.Approval) error
	GetApproval(ctx context.Context, orgID, id string) (*models.Approval, error)
	UpdateApproval(ctx context.Context, a *models.Approval, expectedVersion int64) error
}

// ClientStore creates clients idempotently: creating an existing (org, email)
// pair returns the existing record instead of failing or double-inserting.
type ClientStore interface {
	CreateClient(ctx context.Context, c *models.Client) (*models.Client, error)
}

// OrgLister enumerates organizations for the sweep fanout.
type OrgLister interface {
	ListOrgIDs(ctx context.Context) ([]string, error)
}
