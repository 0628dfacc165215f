// Package reminder schedules and dispatches follow-up reminders with bounded
// retries. A reminder that exhausts its retry budget is marked failed and
// escalated exactly once; cancellation always wins over a pending dispatch.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"followup-engine/internal/audit"
	"followup-engine/internal/channel"
	"followup-engine/internal/common/config"
	"followup-engine/internal/common/errors"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/common/metrics"
	"followup-engine/internal/models"
	"followup-engine/internal/store"
)

// Store is the storage slice the engine needs. Item and request lookups back
// the pre-dispatch re-check.
type Store interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, orgID, id string) (*models.Reminder, error)
	UpdateReminder(ctx context.Context, r *models.Reminder, expectedVersion int64) error
	ListDueReminders(ctx context.Context, orgID string, now time.Time) ([]*models.Reminder, error)
	ListOpenReminders(ctx context.Context, orgID, requestID, itemID string) ([]*models.Reminder, error)
	GetItem(ctx context.Context, orgID, id string) (*models.RequestChecklistItem, error)
	GetRequest(ctx context.Context, orgID, id string) (*models.DataRequest, error)
}

// EscalationEvent is emitted when a reminder exhausts its retry budget.
type EscalationEvent struct {
	OrgID      string
	ReminderID string
	RequestID  string
	ItemID     string
	Channel    models.Channel
	Attempts   int
}

// EscalationHandler consumes escalation events, e.g. to page an operator.
type EscalationHandler func(ctx context.Context, ev EscalationEvent)

// Options tune scheduling and dispatch.
type Options struct {
	// PreDueOffsetDays schedules an extra reminder N days before the
	// request due date, per offset.
	PreDueOffsetDays []int
	MaxRetries       int
	DispatchTimeout  time.Duration
	Backoff          BackoffPolicy
}

type Engine struct {
	store       Store
	senders     channel.Senders
	lease       *store.Lease
	logger      logger.Logger
	audit       audit.Sink
	opts        Options
	escalations []EscalationHandler
	clock       func() time.Time
}

func NewEngine(st Store, senders channel.Senders, log logger.Logger, sink audit.Sink, opts Options) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = models.DefaultMaxRetries
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = NewBackoffPolicy(config.BackoffConfig{})
	}
	return &Engine{
		store:   st,
		senders: senders,
		logger:  log.WithFields(map[string]interface{}{"component": "reminder"}),
		audit:   sink,
		opts:    opts,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// SetLease makes Sweep guard the due-list phase with a per-org lease. The
// lease is always released before any network dispatch.
func (e *Engine) SetLease(l *store.Lease) {
	e.lease = l
}

// SetClock overrides the time source, for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// OnEscalation registers an escalation consumer. Not safe to call once
// sweeps are running.
func (e *Engine) OnEscalation(h EscalationHandler) {
	e.escalations = append(e.escalations, h)
}

// ScheduleForRequest schedules the initial reminder cycle at send time: one
// reminder per enabled channel per mandatory not-yet-approved item, plus one
// at each configured pre-due offset.
func (e *Engine) ScheduleForRequest(ctx context.Context, req *models.DataRequest, items []*models.RequestChecklistItem) error {
	for _, it := range items {
		if !it.Mandatory || it.Status == models.ItemStatusApproved {
			continue
		}
		if err := e.ScheduleForItemCycle(ctx, req, it); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleForItemCycle schedules a fresh cycle for one item with retry_count
// zero: an immediate reminder per enabled channel and one per pre-due offset
// that still lies in the future.
func (e *Engine) ScheduleForItemCycle(ctx context.Context, req *models.DataRequest, it *models.RequestChecklistItem) error {
	now := e.clock()
	sendTimes := []time.Time{now}
	if req.DueDate != nil {
		for _, offset := range e.opts.PreDueOffsetDays {
			at := req.DueDate.AddDate(0, 0, -offset)
			if at.After(now) {
				sendTimes = append(sendTimes, at)
			}
		}
	}

	for _, ch := range req.Channels {
		for _, at := range sendTimes {
			r := &models.Reminder{
				ID:          uuid.NewString(),
				OrgID:       req.OrgID,
				Type:        models.ReminderTypeRequest,
				RequestID:   req.ID,
				ItemID:      it.ID,
				Recipient:   req.Recipient,
				Channel:     ch,
				Subject:     fmt.Sprintf("Follow-up: %s", it.Particular),
				Body:        fmt.Sprintf("Please submit %q for request %s.", it.Particular, req.RequestNumber),
				ScheduledAt: at,
				Status:      models.ReminderStatusPending,
				MaxRetries:  e.opts.MaxRetries,
				Cycle:       it.Cycle,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := e.store.CreateReminder(ctx, r); err != nil {
				return err
			}
		}
	}

	e.logger.Debug("reminder cycle scheduled", map[string]interface{}{
		"requestId": req.ID,
		"itemId":    it.ID,
		"cycle":     it.Cycle,
		"channels":  len(req.Channels),
		"sendTimes": len(sendTimes),
	})
	return nil
}

// ScheduleDocumentExpiry schedules a document-expiry reminder at each offset
// before the expiry date.
func (e *Engine) ScheduleDocumentExpiry(ctx context.Context, orgID, itemID, recipient string, ch models.Channel, subject string, expiresAt time.Time, offsetDays []int) error {
	now := e.clock()
	for _, offset := range offsetDays {
		at := expiresAt.AddDate(0, 0, -offset)
		if !at.After(now) {
			continue
		}
		r := &models.Reminder{
			ID:          uuid.NewString(),
			OrgID:       orgID,
			Type:        models.ReminderTypeDocumentExpiry,
			ItemID:      itemID,
			Recipient:   recipient,
			Channel:     ch,
			Subject:     subject,
			Body:        fmt.Sprintf("%s expires on %s.", subject, expiresAt.Format("2006-01-02")),
			ScheduledAt: at,
			Status:      models.ReminderStatusPending,
			MaxRetries:  e.opts.MaxRetries,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.store.CreateReminder(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// CancelForItem cancels every pending reminder for one item.
func (e *Engine) CancelForItem(ctx context.Context, orgID, requestID, itemID string) error {
	return e.cancelOpen(ctx, orgID, requestID, itemID)
}

// CancelForRequest cancels every pending reminder under a request.
func (e *Engine) CancelForRequest(ctx context.Context, orgID, requestID string) error {
	return e.cancelOpen(ctx, orgID, requestID, "")
}

func (e *Engine) cancelOpen(ctx context.Context, orgID, requestID, itemID string) error {
	open, err := e.store.ListOpenReminders(ctx, orgID, requestID, itemID)
	if err != nil {
		return err
	}
	for _, r := range open {
		expected := r.Version
		r.Status = models.ReminderStatusCancelled
		if err := e.store.UpdateReminder(ctx, r, expected); err != nil {
			// A concurrent dispatch won; the pre-send re-check or the next
			// sweep settles it.
			if errors.HasCode(err, errors.ErrCodeConcurrentModification) {
				continue
			}
			return err
		}
	}
	if len(open) > 0 {
		e.logger.Info("reminders cancelled", map[string]interface{}{
			"requestId": requestID,
			"itemId":    itemID,
			"count":     len(open),
		})
	}
	return nil
}

// Sweep dispatches every due pending reminder for the org. When a lease is
// configured it guards only the due-list phase; every network send happens
// after release.
func (e *Engine) Sweep(ctx context.Context, orgID string) (int, error) {
	due, err := e.collectDue(ctx, orgID)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range due {
		ok, err := e.dispatch(ctx, orgID, id)
		if err != nil {
			e.logger.Error("reminder dispatch errored", map[string]interface{}{
				"reminderId": id,
				"error":      err.Error(),
			})
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (e *Engine) collectDue(ctx context.Context, orgID string) ([]string, error) {
	if e.lease != nil {
		key := "reminders:" + orgID
		token, ok, err := e.lease.Acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		defer func() {
			if err := e.lease.Release(ctx, key, token); err != nil {
				e.logger.Warn("lease release failed", map[string]interface{}{"key": key, "error": err.Error()})
			}
		}()
	}

	due, err := e.store.ListDueReminders(ctx, orgID, e.clock())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(due))
	for _, r := range due {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// dispatch sends one reminder. The reminder is re-fetched first so a cancel
// that landed after the due listing wins, and the related item and request
// are re-checked so settled work is never chased.
func (e *Engine) dispatch(ctx context.Context, orgID, reminderID string) (bool, error) {
	r, err := e.store.GetReminder(ctx, orgID, reminderID)
	if err != nil {
		return false, err
	}
	if r.Status != models.ReminderStatusPending {
		return false, nil
	}

	if stale, err := e.isStale(ctx, r); err != nil {
		return false, err
	} else if stale {
		expected := r.Version
		r.Status = models.ReminderStatusCancelled
		if err := e.store.UpdateReminder(ctx, r, expected); err != nil && !errors.HasCode(err, errors.ErrCodeConcurrentModification) {
			return false, err
		}
		return false, nil
	}

	sender, ok := e.senders[r.Channel]
	if !ok {
		return false, e.recordFailure(ctx, r, errors.NewDispatchFailure(string(r.Channel), fmt.Errorf("no sender configured")))
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
	receipt, sendErr := sender.Send(sendCtx, channel.Message{
		Recipient: r.Recipient,
		Subject:   r.Subject,
		Body:      r.Body,
		Metadata: map[string]string{
			"reminderId": r.ID,
			"requestId":  r.RequestID,
			"itemId":     r.ItemID,
		},
	})
	cancel()

	if sendErr != nil {
		metrics.RemindersDispatched.WithLabelValues(string(r.Channel), "failure").Inc()
		return false, e.recordFailure(ctx, r, errors.NewDispatchFailure(string(r.Channel), sendErr))
	}

	now := e.clock()
	expected := r.Version
	r.Status = models.ReminderStatusSent
	r.SentAt = &now
	if err := e.store.UpdateReminder(ctx, r, expected); err != nil {
		if errors.HasCode(err, errors.ErrCodeConcurrentModification) {
			return false, nil
		}
		return false, err
	}

	metrics.RemindersDispatched.WithLabelValues(string(r.Channel), "success").Inc()
	e.logger.Info("reminder sent", map[string]interface{}{
		"reminderId": r.ID,
		"channel":    r.Channel,
		"receipt":    receipt,
		"attempt":    r.RetryCount + 1,
	})
	return true, nil
}

// isStale reports whether the reminder's underlying work is settled: item
// approved or rejected, or the owning request closed.
func (e *Engine) isStale(ctx context.Context, r *models.Reminder) (bool, error) {
	if r.RequestID != "" {
		req, err := e.store.GetRequest(ctx, r.OrgID, r.RequestID)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeNotFound) {
				return true, nil
			}
			return false, err
		}
		if req.Status.IsClosed() {
			return true, nil
		}
	}
	if r.ItemID != "" && r.Type == models.ReminderTypeRequest {
		it, err := e.store.GetItem(ctx, r.OrgID, r.ItemID)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeNotFound) {
				return true, nil
			}
			return false, err
		}
		if it.Status == models.ItemStatusApproved || it.Status == models.ItemStatusRejected {
			return true, nil
		}
	}
	return false, nil
}

// recordFailure bumps retry_count. Under the budget the reminder stays
// pending at a backed-off schedule; at the budget it is failed and escalated.
// The escalation fires only for the dispatcher whose conditional update won,
// so it is emitted exactly once.
func (e *Engine) recordFailure(ctx context.Context, r *models.Reminder, dispatchErr error) error {
	expected := r.Version
	r.RetryCount++

	if r.RetryCount < r.MaxRetries {
		r.ScheduledAt = e.clock().Add(e.opts.Backoff.Delay(r.RetryCount))
		if err := e.store.UpdateReminder(ctx, r, expected); err != nil {
			if errors.HasCode(err, errors.ErrCodeConcurrentModification) {
				return nil
			}
			return err
		}
		e.logger.Warn("reminder dispatch failed, rescheduled", map[string]interface{}{
			"reminderId":  r.ID,
			"retryCount":  r.RetryCount,
			"scheduledAt": r.ScheduledAt,
			"error":       dispatchErr.Error(),
		})
		return nil
	}

	r.Status = models.ReminderStatusFailed
	if err := e.store.UpdateReminder(ctx, r, expected); err != nil {
		if errors.HasCode(err, errors.ErrCodeConcurrentModification) {
			return nil
		}
		return err
	}

	metrics.EscalationsEmitted.Inc()
	e.logger.Error("reminder retries exhausted", map[string]interface{}{
		"reminderId": r.ID,
		"channel":    r.Channel,
		"attempts":   r.RetryCount,
		"error":      dispatchErr.Error(),
	})
	e.audit.Record(ctx, audit.Entry{
		EntityType:  "reminder",
		EntityID:    r.ID,
		OrgID:       r.OrgID,
		Action:      "escalate",
		PerformedBy: "engine",
		NewValues:   map[string]interface{}{"attempts": r.RetryCount, "channel": string(r.Channel)},
		RecordedAt:  e.clock(),
	})

	ev := EscalationEvent{
		OrgID:      r.OrgID,
		ReminderID: r.ID,
		RequestID:  r.RequestID,
		ItemID:     r.ItemID,
		Channel:    r.Channel,
		Attempts:   r.RetryCount,
	}
	for _, h := range e.escalations {
		h(ctx, ev)
	}
	return nil
}
