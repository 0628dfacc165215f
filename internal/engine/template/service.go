// Package template manages reusable collection templates. Checklist item
// definitions are validated against a JSON schema before a template is
// accepted; editing never mutates prior versions in place.
package template

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"followup-engine/internal/audit"
	"followup-engine/internal/common/errors"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/engine/authz"
	"followup-engine/internal/models"
)

// checklistSchema constrains template item definitions: every item needs a
// non-empty particular, document types are free-form strings, depends_on may
// only reference another particular.
const checklistSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["particular"],
		"properties": {
			"particular":   {"type": "string", "minLength": 1},
			"documentType": {"type": "string"},
			"mandatory":    {"type": "boolean"},
			"dependsOn":    {"type": "string"}
		},
		"additionalProperties": false
	}
}`

// Store is the storage slice the service needs.
type Store interface {
	CreateTemplate(ctx context.Context, t *models.Template) error
	GetTemplate(ctx context.Context, orgID, id string) (*models.Template, error)
	UpdateTemplate(ctx context.Context, t *models.Template, expectedVersion int) error
}

type Service struct {
	store  Store
	logger logger.Logger
	audit  audit.Sink
	schema *gojsonschema.Schema
	clock  func() time.Time
}

func NewService(st Store, log logger.Logger, sink audit.Sink) (*Service, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(checklistSchema))
	if err != nil {
		return nil, err
	}
	return &Service{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "template"}),
		audit:  sink,
		schema: schema,
		clock:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Create validates and persists a new template at version 1.
func (s *Service) Create(ctx context.Context, actor authz.Actor, tpl *models.Template) (*models.Template, error) {
	if err := authz.Require(actor, authz.ActionManageTemplate); err != nil {
		return nil, err
	}
	if err := s.validate(tpl); err != nil {
		return nil, err
	}

	now := s.clock()
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.Version = 1
	tpl.CreatedBy = actor.ID
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := s.store.CreateTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	s.logger.Info("template created", map[string]interface{}{
		"templateId": tpl.ID,
		"name":       tpl.Name,
		"items":      len(tpl.Items),
	})
	s.audit.Record(ctx, audit.Entry{
		EntityType:  "template",
		EntityID:    tpl.ID,
		OrgID:       tpl.OrgID,
		Action:      "create",
		PerformedBy: actor.ID,
		NewValues:   map[string]interface{}{"name": tpl.Name, "version": 1},
		RecordedAt:  now,
	})
	return tpl, nil
}

// NewVersion applies an edit as a version bump. Requests created from
// earlier versions keep the version they pinned.
func (s *Service) NewVersion(ctx context.Context, actor authz.Actor, orgID, templateID string, apply func(*models.Template)) (*models.Template, error) {
	if err := authz.Require(actor, authz.ActionManageTemplate); err != nil {
		return nil, err
	}

	tpl, err := s.store.GetTemplate(ctx, orgID, templateID)
	if err != nil {
		return nil, err
	}

	expected := tpl.Version
	apply(tpl)
	if err := s.validate(tpl); err != nil {
		return nil, err
	}

	tpl.Version = expected + 1
	if err := s.store.UpdateTemplate(ctx, tpl, expected); err != nil {
		return nil, err
	}

	s.logger.Info("template version bumped", map[string]interface{}{
		"templateId": tpl.ID,
		"version":    tpl.Version,
	})
	s.audit.Record(ctx, audit.Entry{
		EntityType:  "template",
		EntityID:    tpl.ID,
		OrgID:       orgID,
		Action:      "new_version",
		PerformedBy: actor.ID,
		NewValues:   map[string]interface{}{"version": tpl.Version},
		RecordedAt:  s.clock(),
	})
	return tpl, nil
}

func (s *Service) validate(tpl *models.Template) error {
	if tpl.Name == "" {
		return errors.NewValidationFailedError("template name is required")
	}
	switch tpl.TaskType {
	case models.TaskTypeOneTime, models.TaskTypeRecurring:
	default:
		return errors.NewValidationFailedError("task type must be one_time or recurring")
	}
	if tpl.TaskType == models.TaskTypeRecurring {
		if !tpl.Schedule.IsRecurring() {
			return errors.NewInvalidScheduleError("recurring template needs a schedule frequency")
		}
		if tpl.Schedule.EndDate != nil && tpl.Schedule.StartDate.After(*tpl.Schedule.EndDate) {
			return errors.NewInvalidScheduleError("schedule start date is after end date")
		}
	}
	return s.validateChecklist(tpl.Items)
}

// validateChecklist checks the item definitions against the JSON schema and
// resolves depends_on references.
func (s *Service) validateChecklist(items []models.ChecklistItemDef) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var details []string
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.NewValidationFailedError("checklist definition invalid: " + strings.Join(details, "; "))
	}

	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.Particular] = true
	}
	for _, it := range items {
		if it.DependsOn != "" && !known[it.DependsOn] {
			return errors.NewValidationFailedError("checklist item " + it.Particular + " depends on unknown item " + it.DependsOn)
		}
	}
	return nil
}
