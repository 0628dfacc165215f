// Package approval implements the maker-checker workflow. A pending Approval
// gates an entity; the first reviewer decision wins and every later attempt
// fails ALREADY_REVIEWED. Which transitions require an approval is the
// caller's configuration, not encoded here.
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"followup-engine/internal/audit"
	"followup-engine/internal/common/errors"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/engine/authz"
	"followup-engine/internal/models"
)

// Store is the storage slice the service needs.
type Store interface {
	CreateApproval(ctx context.Context, a *models.Approval) error
	GetApproval(ctx context.Context, orgID, id string) (*models.Approval, error)
	UpdateApproval(ctx context.Context, a *models.Approval, expectedVersion int64) error
}

// DecisionEvent is emitted once per decided approval; the owning state
// machine consumes it to advance its entity.
type DecisionEvent struct {
	OrgID      string
	ApprovalID string
	Type       models.ApprovalType
	EntityID   string
	Action     models.ApprovalAction
	ReviewerID string
	Remarks    string
	At         time.Time
}

// DecisionHandler consumes decision events.
type DecisionHandler func(ctx context.Context, ev DecisionEvent)

type Service struct {
	store    Store
	logger   logger.Logger
	audit    audit.Sink
	handlers []DecisionHandler
	clock    func() time.Time
}

func NewService(st Store, log logger.Logger, sink audit.Sink) *Service {
	return &Service{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "approval"}),
		audit:  sink,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// OnDecision registers a decision consumer. Not safe to call once decisions
// are flowing.
func (s *Service) OnDecision(h DecisionHandler) {
	s.handlers = append(s.handlers, h)
}

// Create opens a pending approval for an entity.
func (s *Service) Create(ctx context.Context, orgID string, typ models.ApprovalType, entityID, submittedBy string) (*models.Approval, error) {
	a := &models.Approval{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Type:        typ,
		EntityID:    entityID,
		SubmittedBy: submittedBy,
		SubmittedAt: s.clock(),
	}
	if err := s.store.CreateApproval(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Debug("approval opened", map[string]interface{}{
		"approvalId": a.ID,
		"type":       typ,
		"entityId":   entityID,
	})
	return a, nil
}

// Approve records an approved decision.
func (s *Service) Approve(ctx context.Context, actor authz.Actor, orgID, approvalID string) error {
	return s.decide(ctx, actor, orgID, approvalID, models.ApprovalActionApproved, "")
}

// Reject records a rejected decision. Remarks are mandatory.
func (s *Service) Reject(ctx context.Context, actor authz.Actor, orgID, approvalID, remarks string) error {
	if remarks == "" {
		return errors.NewMissingRemarksError(approvalID)
	}
	return s.decide(ctx, actor, orgID, approvalID, models.ApprovalActionRejected, remarks)
}

// ReRequest sends the entity back for another collection cycle. Remarks are
// mandatory, same as a rejection.
func (s *Service) ReRequest(ctx context.Context, actor authz.Actor, orgID, approvalID, remarks string) error {
	if remarks == "" {
		return errors.NewMissingRemarksError(approvalID)
	}
	return s.decide(ctx, actor, orgID, approvalID, models.ApprovalActionReRequest, remarks)
}

// decide records one reviewer decision. The version check on UpdateApproval
// serializes concurrent reviewers: the loser observes a decided record, so a
// lost race surfaces as ALREADY_REVIEWED, not CONCURRENT_MODIFICATION.
func (s *Service) decide(ctx context.Context, actor authz.Actor, orgID, approvalID string, action models.ApprovalAction, remarks string) error {
	if err := authz.Require(actor, authz.ActionDecideApproval); err != nil {
		return err
	}

	a, err := s.store.GetApproval(ctx, orgID, approvalID)
	if err != nil {
		return err
	}
	if !a.Pending() {
		return errors.NewAlreadyReviewedError(a.ID)
	}
	if a.SubmittedBy == actor.ID {
		return errors.NewUnauthorizedError(actor.ID, "review own submission")
	}

	now := s.clock()
	expected := a.Version
	a.Action = action
	a.ReviewerID = actor.ID
	a.ReviewedAt = &now
	a.Remarks = remarks

	if err := s.store.UpdateApproval(ctx, a, expected); err != nil {
		if errors.HasCode(err, errors.ErrCodeConcurrentModification) {
			return errors.NewAlreadyReviewedError(a.ID)
		}
		return err
	}

	s.logger.Info("approval decided", map[string]interface{}{
		"approvalId": a.ID,
		"action":     action,
		"reviewerId": actor.ID,
	})
	s.audit.Record(ctx, audit.Entry{
		EntityType:  "approval",
		EntityID:    a.ID,
		OrgID:       orgID,
		Action:      string(action),
		PerformedBy: actor.ID,
		NewValues:   map[string]interface{}{"entityId": a.EntityID, "remarks": remarks},
		RecordedAt:  now,
	})

	ev := DecisionEvent{
		OrgID:      orgID,
		ApprovalID: a.ID,
		Type:       a.Type,
		EntityID:   a.EntityID,
		Action:     action,
		ReviewerID: actor.ID,
		Remarks:    remarks,
		At:         now,
	}
	for _, h := range s.handlers {
		h(ctx, ev)
	}
	return nil
}
