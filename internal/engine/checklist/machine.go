// Package checklist implements the per-item lifecycle of request checklist
// items: not_received -> received -> under_review -> approved/rejected/
// re_requested. Transitions are applied with an optimistic version check so
// concurrent attempts on the same item serialize instead of overwriting.
package checklist

import (
	"context"
	"time"

	"followup-engine/internal/audit"
	"followup-engine/internal/common/errors"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/common/metrics"
	"followup-engine/internal/engine/authz"
	"followup-engine/internal/models"
)

// Event is emitted on every applied transition. Consumers: the request state
// machine (status recompute) and the reminder engine (cancel / re-cycle).
type Event struct {
	OrgID     string
	RequestID string
	ItemID    string
	Old       models.ItemStatus
	New       models.ItemStatus
	Cycle     int
	Actor     string
	At        time.Time
}

// Handler consumes item change events.
type Handler func(ctx context.Context, ev Event)

// Store is the storage slice the machine needs.
type Store interface {
	GetItem(ctx context.Context, orgID, id string) (*models.RequestChecklistItem, error)
	UpdateItem(ctx context.Context, it *models.RequestChecklistItem, expectedVersion int64) error
	GetRequest(ctx context.Context, orgID, id string) (*models.DataRequest, error)
}

// validNext holds the complete transition table. rejected may move to
// re_requested so a reviewer can reopen collection after a rejection.
var validNext = map[models.ItemStatus][]models.ItemStatus{
	models.ItemStatusNotReceived: {models.ItemStatusReceived},
	models.ItemStatusReRequested: {models.ItemStatusReceived},
	models.ItemStatusReceived: {
		models.ItemStatusUnderReview,
		models.ItemStatusApproved,
		models.ItemStatusRejected,
		models.ItemStatusReRequested,
	},
	models.ItemStatusUnderReview: {
		models.ItemStatusApproved,
		models.ItemStatusRejected,
		models.ItemStatusReRequested,
	},
	models.ItemStatusRejected: {models.ItemStatusReRequested},
	models.ItemStatusApproved: {},
}

func canTransition(from, to models.ItemStatus) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Machine struct {
	store    Store
	logger   logger.Logger
	audit    audit.Sink
	handlers []Handler
	clock    func() time.Time
}

func NewMachine(store Store, log logger.Logger, sink audit.Sink) *Machine {
	return &Machine{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "checklist"}),
		audit:  sink,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// OnChange registers an event consumer. Not safe to call once transitions
// are flowing.
func (m *Machine) OnChange(h Handler) {
	m.handlers = append(m.handlers, h)
}

// SetClock overrides the time source, for tests.
func (m *Machine) SetClock(clock func() time.Time) {
	m.clock = clock
}

// Submit records a client submission: not_received/re_requested -> received.
func (m *Machine) Submit(ctx context.Context, actor authz.Actor, orgID, itemID string) error {
	if err := authz.Require(actor, authz.ActionSubmitItem); err != nil {
		return err
	}

	return m.apply(ctx, actor, orgID, itemID, models.ItemStatusReceived, func(it *models.RequestChecklistItem) {
		now := m.clock()
		it.SubmittedAt = &now
	})
}

// StartReview moves a received item into under_review.
func (m *Machine) StartReview(ctx context.Context, actor authz.Actor, orgID, itemID string) error {
	if err := authz.Require(actor, authz.ActionReviewItem); err != nil {
		return err
	}

	return m.apply(ctx, actor, orgID, itemID, models.ItemStatusUnderReview, nil)
}

// Review records a reviewer decision: approved, rejected or re_requested.
// A re-request clears submitted_at and bumps the item's request cycle, which
// the reminder engine uses to start a fresh reminder cycle.
func (m *Machine) Review(ctx context.Context, actor authz.Actor, orgID, itemID string, decision models.ItemStatus, clientComment, internalComment string) error {
	if err := authz.Require(actor, authz.ActionReviewItem); err != nil {
		return err
	}

	switch decision {
	case models.ItemStatusApproved, models.ItemStatusRejected, models.ItemStatusReRequested:
	default:
		return errors.NewValidationFailedError("review decision must be approved, rejected or re_requested")
	}

	return m.apply(ctx, actor, orgID, itemID, decision, func(it *models.RequestChecklistItem) {
		now := m.clock()
		if clientComment != "" {
			it.ClientComment = clientComment
		}
		if internalComment != "" {
			it.InternalComment = internalComment
		}
		switch decision {
		case models.ItemStatusApproved, models.ItemStatusRejected:
			it.ReviewedAt = &now
			it.ReviewedBy = actor.ID
		case models.ItemStatusReRequested:
			it.SubmittedAt = nil
			it.Cycle++
		}
	})
}

// ApplyVerification consumes an external verification result. A matched
// result short-circuits manual triage by moving received -> under_review;
// anything else is left for a human reviewer.
func (m *Machine) ApplyVerification(ctx context.Context, orgID string, res models.VerificationResult) error {
	if res.MatchStatus != models.MatchStatusMatched {
		m.logger.Debug("verification result needs manual review", map[string]interface{}{
			"itemId":      res.ItemID,
			"matchStatus": res.MatchStatus,
		})
		return nil
	}

	it, err := m.store.GetItem(ctx, orgID, res.ItemID)
	if err != nil {
		return err
	}
	if it.Status != models.ItemStatusReceived {
		return nil
	}

	system := authz.Actor{ID: "verification", Role: authz.RoleTeamMember}
	return m.apply(ctx, system, orgID, res.ItemID, models.ItemStatusUnderReview, nil)
}

// apply performs one guarded transition: load, validate against the request
// and the transition table, mutate, persist with a version check, then fan
// out the change event.
func (m *Machine) apply(ctx context.Context, actor authz.Actor, orgID, itemID string, to models.ItemStatus, mutate func(*models.RequestChecklistItem)) error {
	it, err := m.store.GetItem(ctx, orgID, itemID)
	if err != nil {
		return err
	}

	req, err := m.store.GetRequest(ctx, orgID, it.RequestID)
	if err != nil {
		return err
	}
	if req.Status.IsClosed() {
		return errors.NewRequestClosedError(req.ID, string(req.Status))
	}

	if !canTransition(it.Status, to) {
		return errors.NewInvalidTransitionError("request_item", string(it.Status), string(to))
	}

	old := it.Status
	expected := it.Version
	it.Status = to
	if mutate != nil {
		mutate(it)
	}

	if err := m.store.UpdateItem(ctx, it, expected); err != nil {
		return err
	}

	metrics.TransitionsApplied.WithLabelValues("request_item").Inc()
	m.logger.Info("item transition applied", map[string]interface{}{
		"itemId": it.ID,
		"from":   old,
		"to":     to,
		"cycle":  it.Cycle,
	})

	m.audit.Record(ctx, audit.Entry{
		EntityType:  "request_item",
		EntityID:    it.ID,
		OrgID:       orgID,
		Action:      "transition",
		PerformedBy: actor.ID,
		OldValues:   map[string]interface{}{"status": string(old)},
		NewValues:   map[string]interface{}{"status": string(to)},
		RecordedAt:  m.clock(),
	})

	ev := Event{
		OrgID:     orgID,
		RequestID: it.RequestID,
		ItemID:    it.ID,
		Old:       old,
		New:       to,
		Cycle:     it.Cycle,
		Actor:     actor.ID,
		At:        m.clock(),
	}
	for _, h := range m.handlers {
		h(ctx, ev)
	}

	return nil
}
