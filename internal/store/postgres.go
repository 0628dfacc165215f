// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"followup-engine/internal/common/errors"
	"followup-engine/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// Postgres implements every store contract against PostgreSQL. Conditional
// updates compare the stored version column in the WHERE clause so a lost
// race surfaces as zero affected rows, never as a silent overwrite.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// casResult maps an UPDATE outcome to the error taxonomy: zero rows means
// either the row vanished or the version moved.
func (p *Postgres) casResult(ctx context.Context, res sql.Result, table, entity, orgID, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1 AND org_id = $2)", table)
	if err := p.db.QueryRowContext(ctx, query, id, orgID).Scan(&exists); err != nil {
		return fmt.Errorf("existence check: %w", err)
	}
	if !exists {
		return errors.NewNotFoundError(entity, id)
	}
	return errors.NewConcurrentModificationError(entity, id)
}

// --- templates ---

func (p *Postgres) CreateTemplate(ctx context.Context, t *models.Template) error {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	var endDate sql.NullTime
	if t.Schedule.EndDate != nil {
		endDate = sql.NullTime{Time: *t.Schedule.EndDate, Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO templates (id, org_id, name, task_type, frequency, day_rule, start_date, end_date,
		       items, default_priority, sla_days, visibility, version, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.OrgID, t.Name, t.TaskType, t.Schedule.Frequency, t.Schedule.DayRule,
		t.Schedule.StartDate, endDate, items, t.DefaultPriority, t.SLADays,
		t.Visibility, t.Version, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (p *Postgres) GetTemplate(ctx context.Context, orgID, id string) (*models.Template, error) {
	var t models.Template
	var items []byte
	var endDate sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, task_type, frequency, day_rule, start_date, end_date,
		       items, default_priority, sla_days, visibility, version, created_by, created_at, updated_at
		FROM templates WHERE id = $1 AND org_id = $2`, id, orgID).Scan(
		&t.ID, &t.OrgID, &t.Name, &t.TaskType, &t.Schedule.Frequency, &t.Schedule.DayRule,
		&t.Schedule.StartDate, &endDate, &items, &t.DefaultPriority, &t.SLADays,
		&t.Visibility, &t.Version, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("template", id)
	}
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		t.Schedule.EndDate = &endDate.Time
	}
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &t, nil
}

func (p *Postgres) UpdateTemplate(ctx context.Context, t *models.Template, expectedVersion int) error {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	var endDate sql.NullTime
	if t.Schedule.EndDate != nil {
		endDate = sql.NullTime{Time: *t.Schedule.EndDate, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE templates
		SET name = $3, task_type = $4, frequency = $5, day_rule = $6, start_date = $7, end_date = $8,
		    items = $9, default_priority = $10, sla_days = $11, visibility = $12,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND version = $13`,
		t.ID, t.OrgID, t.Name, t.TaskType, t.Schedule.Frequency, t.Schedule.DayRule,
		t.Schedule.StartDate, endDate, items, t.DefaultPriority, t.SLADays, t.Visibility,
		expectedVersion)
	if err != nil {
		return err
	}
	if err := p.casResult(ctx, res, "templates", "template", t.OrgID, t.ID); err != nil {
		return err
	}
	t.Version = expectedVersion + 1
	return nil
}

// --- tasks ---

func (p *Postgres) CreateTask(ctx context.Context, t *models.Task) error {
	var nextRun, dueDate, endDate sql.NullTime
	if t.NextRunDate != nil {
		nextRun = sql.NullTime{Time: *t.NextRunDate, Valid: true}
	}
	if t.DueDate != nil {
		dueDate = sql.NullTime{Time: *t.DueDate, Valid: true}
	}
	if t.Schedule.EndDate != nil {
		endDate = sql.NullTime{Time: *t.Schedule.EndDate, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tasks (id, org_id, template_id, template_version, client_id, title, recurring,
		       frequency, day_rule, start_date, end_date, next_run_date, status, due_date,
		       priority, sla_days, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		t.ID, t.OrgID, t.TemplateID, t.TemplateVersion, t.ClientID, t.Title, t.Recurring,
		t.Schedule.Frequency, t.Schedule.DayRule, t.Schedule.StartDate, endDate, nextRun,
		t.Status, dueDate, t.Priority, t.SLADays, t.Version, t.CreatedAt, t.UpdatedAt)
	return err
}

func (p *Postgres) scanTask(row interface{ Scan(...interface{}) error }) (*models.Task, error) {
	var t models.Task
	var nextRun, dueDate, endDate sql.NullTime
	err := row.Scan(
		&t.ID, &t.OrgID, &t.TemplateID, &t.TemplateVersion, &t.ClientID, &t.Title, &t.Recurring,
		&t.Schedule.Frequency, &t.Schedule.DayRule, &t.Schedule.StartDate, &endDate, &nextRun,
		&t.Status, &dueDate, &t.Priority, &t.SLADays, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if nextRun.Valid {
		t.NextRunDate = &nextRun.Time
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	if endDate.Valid {
		t.Schedule.EndDate = &endDate.Time
	}
	return &t, nil
}

const taskColumns = `id, org_id, template_id, template_version, client_id, title, recurring,
	frequency, day_rule, start_date, end_date, next_run_date, status, due_date,
	priority, sla_days, version, created_at, updated_at`

func (p *Postgres) GetTask(ctx context.Context, orgID, id string) (*models.Task, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND org_id = $2`, id, orgID)
	t, err := p.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", id)
	}
	return t, err
}

func (p *Postgres) UpdateTask(ctx context.Context, t *models.Task, expectedVersion int64) error {
	var nextRun, dueDate sql.NullTime
	if t.NextRunDate != nil {
		nextRun = sql.NullTime{Time: *t.NextRunDate, Valid: true}
	}
	if t.DueDate != nil {
		dueDate = sql.NullTime{Time: *t.DueDate, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE tasks
		SET next_run_date = $3, status = $4, due_date = $5, priority = $6,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND version = $7`,
		t.ID, t.OrgID, nextRun, t.Status, dueDate, t.Priority, expectedVersion)
	if err != nil {
		return err
	}
	if err := p.casResult(ctx, res, "tasks", "task", t.OrgID, t.ID); err != nil {
		return err
	}
	t.Version = expectedVersion + 1
	return nil
}

func (p *Postgres) ListDueTasks(ctx context.Context, orgID string, now time.Time) ([]*models.Task, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE org_id = $1 AND recurring = true AND next_run_date IS NOT NULL
		  AND next_run_date <= $2 AND status NOT IN ('completed', 'cancelled')
		ORDER BY next_run_date`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := p.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- occurrences ---

func (p *Postgres) CreateOccurrence(ctx context.Context, o *models.TaskOccurrence) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO task_occurrences (id, task_id, org_id, occurrence_date, due_date, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.TaskID, o.OrgID, o.OccurrenceDate, o.DueDate, o.Status, o.Version, o.CreatedAt, o.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqUniqueViolation {
		return errors.NewDuplicateEntityError("task_occurrence", occKey(o.TaskID, o.OccurrenceDate))
	}
	return err
}

func (p *Postgres) GetOccurrence(ctx context.Context, orgID, id string) (*models.TaskOccurrence, error) {
	var o models.TaskOccurrence
	err := p.db.QueryRowContext(ctx, `
		SELECT id, task_id, org_id, occurrence_date, due_date, status, version, created_at, updated_at
		FROM task_occurrences WHERE id = $1 AND org_id = $2`, id, orgID).Scan(
		&o.ID, &o.TaskID, &o.OrgID, &o.OccurrenceDate, &o.DueDate, &o.Status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task_occurrence", id)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (p *Postgres) UpdateOccurrence(ctx context.Context, o *models.TaskOccurrence, expectedVersion int64) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE task_occurrences
		SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND version = $4`,
		o.ID, o.OrgID, o.Status, expectedVersion)
	if err != nil {
		return err
	}
	if err := p.casResult(ctx, res, "task_occurrences", "task_occurrence", o.OrgID, o.ID); err != nil {
		return err
	}
	o.Version = expectedVersion + 1
	return nil
}

func (p *Postgres) ListOccurrences(ctx context.Context, orgID, taskID string) ([]*models.TaskOccurrence, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, task_id, org_id, occurrence_date, due_date, status, version, created_at, updated_at
		FROM task_occurrences
		WHERE org_id = $1 AND task_id = $2
		ORDER BY occurrence_date`, orgID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TaskOccurrence
	for rows.Next() {
		var o models.TaskOccurrence
		if err := rows.Scan(&o.ID, &o.TaskID, &o.OrgID, &o.OccurrenceDate, &o.DueDate, &o.Status,
			&o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (p *Postgres) ListOverdueOccurrences(ctx context.Context, orgID string, now time.Time) ([]*models.TaskOccurrence, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, task_id, org_id, occurrence_date, due_date, status, version, created_at, updated_at
		FROM task_occurrences
		WHERE org_id = $1 AND status IN ('pending', 'in_progress') AND due_date < $2`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TaskOccurrence
	for rows.Next() {
		var o models.TaskOccurrence
		if err := rows.Scan(&o.ID, &o.TaskID, &o.OrgID, &o.OccurrenceDate, &o.DueDate, &o.Status,
			&o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// --- requests ---

func (p *Postgres) CreateRequest(ctx context.Context, r *models.DataRequest) error {
	channels := make([]string, len(r.Channels))
	for i, c := range r.Channels {
		channels[i] = string(c)
	}
	var due, sentAt, completedAt sql.NullTime
	if r.DueDate != nil {
		due = sql.NullTime{Time: *r.DueDate, Valid: true}
	}
	if r.SentAt != nil {
		sentAt = sql.NullTime{Time: *r.SentAt, Valid: true}
	}
	if r.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO data_requests (id, org_id, request_number, template_id, template_version, task_id,
		       client_id, recipient, status, priority, due_date, channels, sent_at, completed_at,
		       version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.OrgID, r.RequestNumber, r.TemplateID, r.TemplateVersion, r.TaskID,
		r.ClientID, r.Recipient, r.Status, r.Priority, due, pq.Array(channels), sentAt, completedAt,
		r.Version, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *Postgres) GetRequest(ctx context.Context, orgID, id string) (*models.DataRequest, error) {
	var r models.DataRequest
	var channels pq.StringArray
	var due, sentAt, completedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id, org_id, request_number, template_id, template_version, task_id, client_id, recipient,
		       status, priority, due_date, channels, sent_at, completed_at, version, created_at, updated_at
		FROM data_requests WHERE id = $1 AND org_id = $2`, id, orgID).Scan(
		&r.ID, &r.OrgID, &r.RequestNumber, &r.TemplateID, &r.TemplateVersion, &r.TaskID, &r.ClientID,
		&r.Recipient, &r.Status, &r.Priority, &due, &channels, &sentAt, &completedAt,
		&r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("data_request", id)
	}
	if err != nil {
		return nil, err
	}
	for _, c := range channels {
		r.Channels = append(r.Channels, models.Channel(c))
	}
	if due.Valid {
		r.DueDate = &due.Time
	}
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

func (p *Postgres) UpdateRequest(ctx context.Context, r *models.DataRequest, expectedVersion int64) error {
	var sentAt, completedAt sql.NullTime
	if r.SentAt != nil {
		sentAt = sql.NullTime{Time: *r.SentAt, Valid: true}
	}
	if r.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *r.CompletedAt, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE data_requests
		SET status = $3, sent_at = $4, completed_at = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND version = $6`,
		r.ID, r.OrgID, r.Status, sentAt, completedAt, expectedVersion)
	if err != nil {
		return err
	}
	if err := p.casResult(ctx, res, "data_requests", "data_request", r.OrgID, r.ID); err != nil {
		return err
	}
	r.Version = expectedVersion + 1
	return nil
}

// --- request items ---

func (p *Postgres) CreateItem(ctx context.Context, it *models.RequestChecklistItem) error {
	var submittedAt, reviewedAt sql.NullTime
	if it.SubmittedAt != nil {
		submittedAt = sql.NullTime{Time: *it.SubmittedAt, Valid: true}
	}
	if it.ReviewedAt != nil {
		reviewedAt = sql.NullTime{Time: *it.ReviewedAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO request_items (id, request_id, org_id, particular, document_type, mandatory,
		       status, submitted_at, reviewed_at, reviewed_by, client_comment, internal_comment,
		       cycle, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		it.ID, it.RequestID, it.OrgID, it.Particular, it.DocumentType, it.Mandatory,
		it.Status, submittedAt, reviewedAt, it.ReviewedBy, it.ClientComment, it.InternalComment,
		it.Cycle, it.Version, it.CreatedAt, it.UpdatedAt)
	return err
}

func (p *Postgres) scanItem(row interface{ Scan(...interface{}) error }) (*models.RequestChecklistItem, error) {
	var it models.RequestChecklistItem
	var submittedAt, reviewedAt sql.NullTime
	err := row.Scan(
		&it.ID, &it.RequestID, &it.OrgID, &it.Particular, &it.DocumentType, &it.Mandatory,
		&it.Status, &submittedAt, &reviewedAt, &it.ReviewedBy, &it.ClientComment, &it.InternalComment,
		&it.Cycle, &it.Version, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		it.SubmittedAt = &submittedAt.Time
	}
	if reviewedAt.Valid {
		it.ReviewedAt = &reviewedAt.Time
	}
	return &it, nil
}

const itemColumns = `id, request_id, org_id, particular, document_type, mandatory,
	status, submitted_at, reviewed_at, reviewed_by, client_comment, internal_comment,
	cycle, version, created_at, updated_at`

func (p *Postgres) GetItem(ctx context.Context, orgID, id string) (*models.RequestChecklistItem, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM request_items WHERE id = $1 AND org_id = $2`, id, orgID)
	it, err := p.scanItem(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("request_item", id)
	}
	return it, err
}

func (p *Postgres) UpdateItem(ctx context.Context, it *models.RequestChecklistItem, expectedVersion int64) error {
	var submittedAt, reviewedAt sql.NullTime
	if it.SubmittedAt != nil {
		submittedAt = sql.NullTime{Time: *it.SubmittedAt, Valid: true}
	}
	if it.ReviewedAt != nil {
		reviewedAt = sql.NullTime{Time: *it.ReviewedAt, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE request_items
		SET status = $3, submitted_at = $4, reviewed_at = $5, reviewed_by = $6,
		    client_comment = $7, internal_comment = $8, cycle = $9,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND version = $10`,
		it.ID, it.OrgID, it.Status, submittedAt, reviewedAt, it.ReviewedBy,
		it.ClientComment, it.InternalComment, it.Cycle, expectedVersion)
	if err != nil {
		return err
	}
	if err := p.casResult(ctx, res, "request_items", "request_item", it.OrgID, it.ID); err != nil {
		return err
	}
	it.Version = expectedVersion + 1
	return nil
}

func (p *Postgres) ListItems(ctx context.Context, orgID, requestID string) ([]*models.RequestChecklistItem, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM request_items WHERE org_id = $1 AND request_id = $2 ORDER BY created_at`,
		orgID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RequestChecklistItem
	for rows.Next() {
		it, err := p.scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- reminders ---

const reminderColumns = `id, org_id, type, request_id, item_id, task_id, recipient, channel,
	subject, body, scheduled_at, sent_at, status, retry_count, max_retries, cycle,
	version, created_at, updated_at`

func (p *Postgres) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	var sentAt sql.NullTime
	if r.SentAt != nil {
		sentAt = sql.NullTime{Time: *r.SentAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reminders (id, org_id, type, request_id, item_id, task_id, recipient, channel,
		       subject, body, scheduled_at, sent_at, status, retry_count, max_retries, cycle,
		       version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.OrgID, r.Type, r.RequestID, r.ItemID, r.TaskID, r.Recipient, r.Channel,
		r.Subject, r.Body, r.ScheduledAt, sentAt, r.Status, r.RetryCount, r.MaxRetries, r.Cycle,
		r.Version, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *Postgres) scanReminder(row interface{ Scan(...interface{}) error }) (*models.Reminder, error) {
	var r models.Reminder
	var sentAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.OrgID, &r.Type, &r.RequestID, &r.ItemID, &r.TaskID, &r.Recipient, &r.Channel,
		&r.Subject, &r.Body, &r.ScheduledAt, &sentAt, &r.Status, &r.RetryCount, &r.MaxRetries,
		&r.Cycle, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sentAt.Valid {
		r.SentAt = &sentAt.Time
	}
	return &r, nil
}

func (p *Postgres) GetReminder(ctx context.Context, orgID, id string) (*models.Reminder, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1 AND org_id = $2`, id, orgID)
	r, err := p.scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("reminder", id)
	}
	return r, err
}

func (p *Postgres) UpdateReminder(ctx context.Context, r *models.Reminder, expectedVersion int64) error {
	var sentAt sql.NullTime
	if r.SentAt != nil {
		sentAt = sql.NullTime{Time: *r.SentAt, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE reminders
		SET scheduled_at = $3, sent_at = $4, status = $5, retry_count = $6,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND org_id = $2 AND version = $7`,
		r.ID, r.OrgID, r.ScheduledAt, sentAt, r.Status, r.RetryCount, expectedVersion)
	if err != nil {
		return err
	}
	if err := p.casResult(ctx, res, "reminders", "reminder", r.OrgID, r.ID); err != nil {
		return err
	}
	r.Version = expectedVersion + 1
	return nil
}

func (p *Postgres) ListDueReminders(ctx context.Context, orgID string, now time.Time) ([]*models.Reminder, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE org_id = $1 AND status = 'pending' AND scheduled_at <= $2
		ORDER BY scheduled_at`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Reminder
	for rows.Next() {
		r, err := p.scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ListOpenReminders(ctx context.Context, orgID, requestID, itemID string) ([]*models.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders
		WHERE org_id = $1 AND request_id = $2 AND status = 'pending'`
	args := []interface{}{orgID, requestID}
	if itemID != "" {
		query += ` AND item_id = $3`
		args = append(args, itemID)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Reminder
	for rows.Next() {
		r, err := p.scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- approvals ---

func (p *Postgres) CreateApproval(ctx context.Context, a *models.Approval) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	var reviewedAt sql.NullTime
	if a.ReviewedAt != nil {
		reviewedAt = sql.NullTime{Time: *a.ReviewedAt, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO approvals (id, org_id, type, entity_id, submitted_by, submitted_at,
		       reviewer_id, reviewed_at, action, remarks, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.OrgID, a.Type, a.EntityID, a.SubmittedBy, a.SubmittedAt,
		a.ReviewerID, reviewedAt, a.Action, a.Remarks, a.Version)
	return err
}

func (p *Postgres) GetApproval(ctx context.Context, orgID, id string) (*models.Approval, error) {
	var a models.Approval
	var reviewedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id, org_id, type, entity_id, submitted_by, submitted_at,
		       reviewer_id, reviewed_at, action, remarks, version
		FROM approvals WHERE id = $1 AND org_id = $2`, id, orgID).Scan(
		&a.ID, &a.OrgID, &a.Type, &a.EntityID, &a.SubmittedBy, &a.SubmittedAt,
		&a.ReviewerID, &reviewedAt, &a.Action, &a.Remarks, &a.Version)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("approval", id)
	}
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		a.ReviewedAt = &reviewedAt.Time
	}
	return &a, nil
}

func (p *Postgres) UpdateApproval(ctx context.Context, a *models.Approval, expectedVersion int64) error {
	var reviewedAt sql.NullTime
	if a.ReviewedAt != nil {
		reviewedAt = sql.NullTime{Time: *a.ReviewedAt, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE approvals
		SET reviewer_id = $3, reviewed_at = $4, action = $5, remarks = $6, version = version + 1
		WHERE id = $1 AND org_id = $2 AND version = $7`,
		a.ID, a.OrgID, a.ReviewerID, reviewedAt, a.Action, a.Remarks, expectedVersion)
	if err != nil {
		return err
	}
	if err := p.casResult(ctx, res, "approvals", "approval", a.OrgID, a.ID); err != nil {
		return err
	}
	a.Version = expectedVersion + 1
	return nil
}

// --- clients ---

// CreateClient is idempotent on (org_id, email): an existing pair returns the
// stored record instead of inserting a second one.
func (p *Postgres) CreateClient(ctx context.Context, c *models.Client) (*models.Client, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	var out models.Client
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO clients (id, org_id, name, email, phone, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		ON CONFLICT (org_id, email) DO UPDATE SET name = clients.name
		RETURNING id, org_id, name, email, phone, created_at`,
		c.ID, c.OrgID, c.Name, c.Email, c.Phone).Scan(
		&out.ID, &out.OrgID, &out.Name, &out.Email, &out.Phone, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- org enumeration ---

func (p *Postgres) ListOrgIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT org_id FROM tasks UNION SELECT DISTINCT org_id FROM data_requests`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}
