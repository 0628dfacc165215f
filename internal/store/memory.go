// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"followup-engine/internal/common/errors"
	"followup-engine/internal/models"

	"github.com/google/uuid"
)

// Memory is an in-memory implementation of every store contract. It applies
// the same conditional-update semantics as the postgres store and is safe for
// concurrent use, which the engine tests rely on to exercise races.
type Memory struct {
	mu          sync.Mutex
	templates   map[string]*models.Template
	tasks       map[string]*models.Task
	occurrences map[string]*models.TaskOccurrence
	occKeys     map[string]string // taskID|date -> occurrence id
	requests    map[string]*models.DataRequest
	items       map[string]*models.RequestChecklistItem
	reminders   map[string]*models.Reminder
	approvals   map[string]*models.Approval
	clients     map[string]*models.Client
	clientKeys  map[string]string // orgID|email -> client id
}

func NewMemory() *Memory {
	return &Memory{
		templates:   make(map[string]*models.Template),
		tasks:       make(map[string]*models.Task),
		occurrences: make(map[string]*models.TaskOccurrence),
		occKeys:     make(map[string]string),
		requests:    make(map[string]*models.DataRequest),
		items:       make(map[string]*models.RequestChecklistItem),
		reminders:   make(map[string]*models.Reminder),
		approvals:   make(map[string]*models.Approval),
		clients:     make(map[string]*models.Client),
		clientKeys:  make(map[string]string),
	}
}

func occKey(taskID string, date time.Time) string {
	return taskID + "|" + date.UTC().Format("2006-01-02")
}

// --- templates ---

func (m *Memory) CreateTemplate(_ context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, orgID, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok || t.OrgID != orgID {
		return nil, errors.NewNotFoundError("template", id)
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) UpdateTemplate(_ context.Context, t *models.Template, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.templates[t.ID]
	if !ok || cur.OrgID != t.OrgID {
		return errors.NewNotFoundError("template", t.ID)
	}
	if cur.Version != expectedVersion {
		return errors.NewConcurrentModificationError("template", t.ID)
	}
	t.Version = expectedVersion + 1
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

// --- tasks ---

func (m *Memory) CreateTask(_ context.Context, t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) GetTask(_ context.Context, orgID, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.OrgID != orgID {
		return nil, errors.NewNotFoundError("task", id)
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) UpdateTask(_ context.Context, t *models.Task, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[t.ID]
	if !ok || cur.OrgID != t.OrgID {
		return errors.NewNotFoundError("task", t.ID)
	}
	if cur.Version != expectedVersion {
		return errors.NewConcurrentModificationError("task", t.ID)
	}
	t.Version = expectedVersion + 1
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) ListDueTasks(_ context.Context, orgID string, now time.Time) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*models.Task
	for _, t := range m.tasks {
		if t.OrgID != orgID || !t.Recurring || t.NextRunDate == nil {
			continue
		}
		if t.Status == models.TaskStatusCancelled || t.Status == models.TaskStatusCompleted {
			continue
		}
		if !t.NextRunDate.After(now) {
			cp := *t
			due = append(due, &cp)
		}
	}
	return due, nil
}

// --- occurrences ---

func (m *Memory) CreateOccurrence(_ context.Context, o *models.TaskOccurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := occKey(o.TaskID, o.OccurrenceDate)
	if _, exists := m.occKeys[key]; exists {
		return errors.NewDuplicateEntityError("task_occurrence", key)
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	cp := *o
	m.occurrences[o.ID] = &cp
	m.occKeys[key] = o.ID
	return nil
}

func (m *Memory) GetOccurrence(_ context.Context, orgID, id string) (*models.TaskOccurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.occurrences[id]
	if !ok || o.OrgID != orgID {
		return nil, errors.NewNotFoundError("task_occurrence", id)
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) UpdateOccurrence(_ context.Context, o *models.TaskOccurrence, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.occurrences[o.ID]
	if !ok || cur.OrgID != o.OrgID {
		return errors.NewNotFoundError("task_occurrence", o.ID)
	}
	if cur.Version != expectedVersion {
		return errors.NewConcurrentModificationError("task_occurrence", o.ID)
	}
	o.Version = expectedVersion + 1
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	m.occurrences[o.ID] = &cp
	return nil
}

func (m *Memory) ListOccurrences(_ context.Context, orgID, taskID string) ([]*models.TaskOccurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TaskOccurrence
	for _, o := range m.occurrences {
		if o.OrgID == orgID && o.TaskID == taskID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurrenceDate.Before(out[j].OccurrenceDate) })
	return out, nil
}

func (m *Memory) ListOverdueOccurrences(_ context.Context, orgID string, now time.Time) ([]*models.TaskOccurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TaskOccurrence
	for _, o := range m.occurrences {
		if o.OrgID != orgID {
			continue
		}
		if o.Status != models.OccurrenceStatusPending && o.Status != models.OccurrenceStatusInProgress {
			continue
		}
		if o.DueDate.Before(now) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- requests and items ---

func (m *Memory) CreateRequest(_ context.Context, r *models.DataRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *Memory) GetRequest(_ context.Context, orgID, id string) (*models.DataRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.OrgID != orgID {
		return nil, errors.NewNotFoundError("data_request", id)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateRequest(_ context.Context, r *models.DataRequest, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.requests[r.ID]
	if !ok || cur.OrgID != r.OrgID {
		return errors.NewNotFoundError("data_request", r.ID)
	}
	if cur.Version != expectedVersion {
		return errors.NewConcurrentModificationError("data_request", r.ID)
	}
	r.Version = expectedVersion + 1
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *Memory) CreateItem(_ context.Context, it *models.RequestChecklistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *Memory) GetItem(_ context.Context, orgID, id string) (*models.RequestChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.OrgID != orgID {
		return nil, errors.NewNotFoundError("request_item", id)
	}
	cp := *it
	return &cp, nil
}

func (m *Memory) UpdateItem(_ context.Context, it *models.RequestChecklistItem, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[it.ID]
	if !ok || cur.OrgID != it.OrgID {
		return errors.NewNotFoundError("request_item", it.ID)
	}
	if cur.Version != expectedVersion {
		return errors.NewConcurrentModificationError("request_item", it.ID)
	}
	it.Version = expectedVersion + 1
	it.UpdatedAt = time.Now().UTC()
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *Memory) ListItems(_ context.Context, orgID, requestID string) ([]*models.RequestChecklistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RequestChecklistItem
	for _, it := range m.items {
		if it.OrgID == orgID && it.RequestID == requestID {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- reminders ---

func (m *Memory) CreateReminder(_ context.Context, r *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	cp := *r
	m.reminders[r.ID] = &cp
	return nil
}

func (m *Memory) GetReminder(_ context.Context, orgID, id string) (*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.OrgID != orgID {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateReminder(_ context.Context, r *models.Reminder, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reminders[r.ID]
	if !ok || cur.OrgID != r.OrgID {
		return errors.NewNotFoundError("reminder", r.ID)
	}
	if cur.Version != expectedVersion {
		return errors.NewConcurrentModificationError("reminder", r.ID)
	}
	r.Version = expectedVersion + 1
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	m.reminders[r.ID] = &cp
	return nil
}

func (m *Memory) ListDueReminders(_ context.Context, orgID string, now time.Time) ([]*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reminder
	for _, r := range m.reminders {
		if r.OrgID != orgID || r.Status != models.ReminderStatusPending {
			continue
		}
		if !r.ScheduledAt.After(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListOpenReminders(_ context.Context, orgID, requestID, itemID string) ([]*models.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reminder
	for _, r := range m.reminders {
		if r.OrgID != orgID || r.RequestID != requestID || r.Status != models.ReminderStatusPending {
			continue
		}
		if itemID != "" && r.ItemID != itemID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// --- approvals ---

func (m *Memory) CreateApproval(_ context.Context, a *models.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	cp := *a
	m.approvals[a.ID] = &cp
	return nil
}

func (m *Memory) GetApproval(_ context.Context, orgID, id string) (*models.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.approvals[id]
	if !ok || a.OrgID != orgID {
		return nil, errors.NewNotFoundError("approval", id)
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) UpdateApproval(_ context.Context, a *models.Approval, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.approvals[a.ID]
	if !ok || cur.OrgID != a.OrgID {
		return errors.NewNotFoundError("approval", a.ID)
	}
	if cur.Version != expectedVersion {
		return errors.NewConcurrentModificationError("approval", a.ID)
	}
	a.Version = expectedVersion + 1
	cp := *a
	m.approvals[a.ID] = &cp
	return nil
}

// --- clients ---

func (m *Memory) CreateClient(_ context.Context, c *models.Client) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := c.OrgID + "|" + c.Email
	if id, exists := m.clientKeys[key]; exists {
		cp := *m.clients[id]
		return &cp, nil
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	cp := *c
	m.clients[c.ID] = &cp
	m.clientKeys[key] = c.ID
	out := cp
	return &out, nil
}

// --- org enumeration ---

func (m *Memory) ListOrgIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var orgs []string
	for _, t := range m.tasks {
		if !seen[t.OrgID] {
			seen[t.OrgID] = true
			orgs = append(orgs, t.OrgID)
		}
	}
	for _, r := range m.requests {
		if !seen[r.OrgID] {
			seen[r.OrgID] = true
			orgs = append(orgs, r.OrgID)
		}
	}
	return orgs, nil
}
