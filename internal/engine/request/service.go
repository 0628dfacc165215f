// Package request aggregates checklist items under a data request. Request
// status is always derived from the items, never set directly; the only
// caller-driven transitions are Send (draft -> sent) and Cancel.
package request

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"followup-engine/internal/audit"
	"followup-engine/internal/common/errors"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/common/metrics"
	"followup-engine/internal/engine/authz"
	"followup-engine/internal/engine/checklist"
	"followup-engine/internal/models"
)

// recomputeAttempts bounds the CAS retry loop when concurrent item changes
// race on the same request row.
const recomputeAttempts = 3

// Store is the storage slice the service needs.
type Store interface {
	CreateRequest(ctx context.Context, r *models.DataRequest) error
	GetRequest(ctx context.Context, orgID, id string) (*models.DataRequest, error)
	UpdateRequest(ctx context.Context, r *models.DataRequest, expectedVersion int64) error
	CreateItem(ctx context.Context, it *models.RequestChecklistItem) error
	ListItems(ctx context.Context, orgID, requestID string) ([]*models.RequestChecklistItem, error)
	GetTemplate(ctx context.Context, orgID, id string) (*models.Template, error)
}

// ReminderScheduler is the slice of the reminder engine the request machine
// drives: first reminders at send, cancellation on closure and item
// settlement, a fresh cycle on re-request.
type ReminderScheduler interface {
	ScheduleForRequest(ctx context.Context, req *models.DataRequest, items []*models.RequestChecklistItem) error
	ScheduleForItemCycle(ctx context.Context, req *models.DataRequest, item *models.RequestChecklistItem) error
	CancelForItem(ctx context.Context, orgID, requestID, itemID string) error
	CancelForRequest(ctx context.Context, orgID, requestID string) error
}

type Service struct {
	store     Store
	reminders ReminderScheduler
	logger    logger.Logger
	audit     audit.Sink
	clock     func() time.Time
}

func NewService(st Store, reminders ReminderScheduler, log logger.Logger, sink audit.Sink) *Service {
	return &Service{
		store:     st,
		reminders: reminders,
		logger:    log.WithFields(map[string]interface{}{"component": "request"}),
		audit:     sink,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// CreateFromTemplate instantiates a draft request and its checklist items
// from a template, pinning the template version the request was built from.
func (s *Service) CreateFromTemplate(ctx context.Context, actor authz.Actor, orgID, templateID, clientID, recipient string, channels []models.Channel, dueDate *time.Time) (*models.DataRequest, error) {
	if err := authz.Require(actor, authz.ActionSendRequest); err != nil {
		return nil, err
	}

	tpl, err := s.store.GetTemplate(ctx, orgID, templateID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	req := &models.DataRequest{
		ID:              uuid.NewString(),
		OrgID:           orgID,
		RequestNumber:   fmt.Sprintf("REQ-%s", uuid.NewString()[:8]),
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		ClientID:        clientID,
		Recipient:       recipient,
		Status:          models.RequestStatusDraft,
		Priority:        tpl.DefaultPriority,
		DueDate:         dueDate,
		Channels:        channels,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.DueDate == nil && tpl.SLADays > 0 {
		d := now.AddDate(0, 0, tpl.SLADays)
		req.DueDate = &d
	}

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	for _, def := range tpl.Items {
		it := &models.RequestChecklistItem{
			ID:           uuid.NewString(),
			RequestID:    req.ID,
			OrgID:        orgID,
			Particular:   def.Particular,
			DocumentType: def.DocumentType,
			Mandatory:    def.Mandatory,
			Status:       models.ItemStatusNotReceived,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.store.CreateItem(ctx, it); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, audit.Entry{
		EntityType:  "request",
		EntityID:    req.ID,
		OrgID:       orgID,
		Action:      "create",
		PerformedBy: actor.ID,
		NewValues:   map[string]interface{}{"templateId": tpl.ID, "templateVersion": tpl.Version},
		RecordedAt:  now,
	})
	return req, nil
}

// Send moves a draft request to sent, stamps sent_at and schedules the first
// reminder cycle for every mandatory item. At least one channel must be
// enabled.
func (s *Service) Send(ctx context.Context, actor authz.Actor, orgID, requestID string) error {
	if err := authz.Require(actor, authz.ActionSendRequest); err != nil {
		return err
	}

	req, err := s.store.GetRequest(ctx, orgID, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.RequestStatusDraft {
		return errors.NewInvalidTransitionError("request", string(req.Status), string(models.RequestStatusSent))
	}
	if len(req.Channels) == 0 {
		return errors.NewValidationFailedError("a request needs at least one enabled channel before sending")
	}

	now := s.clock()
	expected := req.Version
	req.Status = models.RequestStatusSent
	req.SentAt = &now
	if err := s.store.UpdateRequest(ctx, req, expected); err != nil {
		return err
	}

	metrics.TransitionsApplied.WithLabelValues("request").Inc()
	s.logger.Info("request sent", map[string]interface{}{
		"requestId": req.ID,
		"channels":  len(req.Channels),
	})
	s.audit.Record(ctx, audit.Entry{
		EntityType:  "request",
		EntityID:    req.ID,
		OrgID:       orgID,
		Action:      "send",
		PerformedBy: actor.ID,
		OldValues:   map[string]interface{}{"status": string(models.RequestStatusDraft)},
		NewValues:   map[string]interface{}{"status": string(models.RequestStatusSent)},
		RecordedAt:  now,
	})

	items, err := s.store.ListItems(ctx, orgID, requestID)
	if err != nil {
		return err
	}
	return s.reminders.ScheduleForRequest(ctx, req, items)
}

// Cancel is terminal: item transitions fail REQUEST_CLOSED afterwards and all
// pending reminders for the request are cancelled.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, orgID, requestID string) error {
	if err := authz.Require(actor, authz.ActionCancelRequest); err != nil {
		return err
	}

	req, err := s.store.GetRequest(ctx, orgID, requestID)
	if err != nil {
		return err
	}
	if req.Status.IsClosed() {
		return errors.NewRequestClosedError(req.ID, string(req.Status))
	}

	old := req.Status
	expected := req.Version
	req.Status = models.RequestStatusCancelled
	if err := s.store.UpdateRequest(ctx, req, expected); err != nil {
		return err
	}

	metrics.TransitionsApplied.WithLabelValues("request").Inc()
	s.logger.Info("request cancelled", map[string]interface{}{"requestId": req.ID})
	s.audit.Record(ctx, audit.Entry{
		EntityType:  "request",
		EntityID:    req.ID,
		OrgID:       orgID,
		Action:      "cancel",
		PerformedBy: actor.ID,
		OldValues:   map[string]interface{}{"status": string(old)},
		NewValues:   map[string]interface{}{"status": string(models.RequestStatusCancelled)},
		RecordedAt:  s.clock(),
	})

	return s.reminders.CancelForRequest(ctx, orgID, requestID)
}

// DeriveStatus computes a sent request's status from its items. Draft and
// closed requests keep their stored status.
func DeriveStatus(req *models.DataRequest, items []*models.RequestChecklistItem) models.RequestStatus {
	if req.Status == models.RequestStatusDraft || req.Status == models.RequestStatusCancelled {
		return req.Status
	}

	allMandatoryApproved := true
	anyMandatory := false
	anyProgress := false
	for _, it := range items {
		if it.Mandatory {
			anyMandatory = true
			if it.Status != models.ItemStatusApproved {
				allMandatoryApproved = false
			}
		}
		if it.Status != models.ItemStatusNotReceived {
			anyProgress = true
		}
	}

	if anyMandatory && allMandatoryApproved {
		return models.RequestStatusCompleted
	}
	if anyProgress {
		return models.RequestStatusInProgress
	}
	return models.RequestStatusSent
}

// HandleItemChange is wired as a checklist change handler. It recomputes the
// request's derived status and drives reminder bookkeeping for the changed
// item. Errors are logged, not propagated: the item transition has already
// committed.
func (s *Service) HandleItemChange(ctx context.Context, ev checklist.Event) {
	if err := s.recompute(ctx, ev.OrgID, ev.RequestID); err != nil {
		s.logger.Error("request status recompute failed", map[string]interface{}{
			"requestId": ev.RequestID,
			"itemId":    ev.ItemID,
			"error":     err.Error(),
		})
	}

	switch ev.New {
	case models.ItemStatusApproved, models.ItemStatusRejected:
		if err := s.reminders.CancelForItem(ctx, ev.OrgID, ev.RequestID, ev.ItemID); err != nil {
			s.logger.Warn("reminder cancellation failed", map[string]interface{}{
				"itemId": ev.ItemID,
				"error":  err.Error(),
			})
		}
	case models.ItemStatusReRequested:
		if err := s.scheduleFreshCycle(ctx, ev.OrgID, ev.RequestID, ev.ItemID); err != nil {
			s.logger.Warn("re-request reminder scheduling failed", map[string]interface{}{
				"itemId": ev.ItemID,
				"error":  err.Error(),
			})
		}
	}
}

func (s *Service) scheduleFreshCycle(ctx context.Context, orgID, requestID, itemID string) error {
	// Drop the old cycle first so the new one is the only pending reminder
	// for the item.
	if err := s.reminders.CancelForItem(ctx, orgID, requestID, itemID); err != nil {
		return err
	}
	req, err := s.store.GetRequest(ctx, orgID, requestID)
	if err != nil {
		return err
	}
	items, err := s.store.ListItems(ctx, orgID, requestID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.ID == itemID {
			return s.reminders.ScheduleForItemCycle(ctx, req, it)
		}
	}
	return errors.NewNotFoundError("request_item", itemID)
}

// recompute re-derives and persists the request status, retrying a bounded
// number of times when a concurrent item change wins the version race.
func (s *Service) recompute(ctx context.Context, orgID, requestID string) error {
	var lastErr error
	for attempt := 0; attempt < recomputeAttempts; attempt++ {
		req, err := s.store.GetRequest(ctx, orgID, requestID)
		if err != nil {
			return err
		}
		items, err := s.store.ListItems(ctx, orgID, requestID)
		if err != nil {
			return err
		}

		derived := DeriveStatus(req, items)
		if derived == req.Status {
			return nil
		}

		expected := req.Version
		old := req.Status
		req.Status = derived
		if derived == models.RequestStatusCompleted && req.CompletedAt == nil {
			now := s.clock()
			req.CompletedAt = &now
		}

		err = s.store.UpdateRequest(ctx, req, expected)
		if err == nil {
			metrics.TransitionsApplied.WithLabelValues("request").Inc()
			s.logger.Info("request status derived", map[string]interface{}{
				"requestId": req.ID,
				"from":      old,
				"to":        derived,
			})
			if derived == models.RequestStatusCompleted {
				if cerr := s.reminders.CancelForRequest(ctx, orgID, requestID); cerr != nil {
					s.logger.Warn("reminder cancellation failed", map[string]interface{}{
						"requestId": requestID,
						"error":     cerr.Error(),
					})
				}
			}
			return nil
		}
		if !errors.HasCode(err, errors.ErrCodeConcurrentModification) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
