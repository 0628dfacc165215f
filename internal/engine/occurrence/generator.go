// Package occurrence materializes task occurrences from recurring tasks and
// manages occurrence lifecycle. Generation is replay-safe: the unique
// (task_id, occurrence_date) constraint turns duplicate sweeps into no-ops.
package occurrence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"followup-engine/internal/audit"
	"followup-engine/internal/common/errors"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/common/metrics"
	"followup-engine/internal/engine/authz"
	"followup-engine/internal/engine/schedule"
	"followup-engine/internal/models"
)

// DefaultSLADays is the fallback occurrence SLA when the task carries none.
const DefaultSLADays = 7

// Store is the storage slice the generator needs.
type Store interface {
	ListDueTasks(ctx context.Context, orgID string, now time.Time) ([]*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task, expectedVersion int64) error
	CreateOccurrence(ctx context.Context, o *models.TaskOccurrence) error
	GetOccurrence(ctx context.Context, orgID, id string) (*models.TaskOccurrence, error)
	UpdateOccurrence(ctx context.Context, o *models.TaskOccurrence, expectedVersion int64) error
	ListOverdueOccurrences(ctx context.Context, orgID string, now time.Time) ([]*models.TaskOccurrence, error)
}

var occValidNext = map[models.OccurrenceStatus][]models.OccurrenceStatus{
	models.OccurrenceStatusPending:    {models.OccurrenceStatusInProgress, models.OccurrenceStatusCompleted, models.OccurrenceStatusOverdue, models.OccurrenceStatusSkipped},
	models.OccurrenceStatusInProgress: {models.OccurrenceStatusCompleted, models.OccurrenceStatusOverdue, models.OccurrenceStatusSkipped},
	models.OccurrenceStatusOverdue:    {models.OccurrenceStatusCompleted, models.OccurrenceStatusSkipped},
}

func occCanTransition(from, to models.OccurrenceStatus) bool {
	for _, s := range occValidNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Generator struct {
	store   Store
	calc    *schedule.Calculator
	logger  logger.Logger
	audit   audit.Sink
	slaDays int
	clock   func() time.Time
}

func NewGenerator(st Store, calc *schedule.Calculator, log logger.Logger, sink audit.Sink, slaDays int) *Generator {
	if slaDays <= 0 {
		slaDays = DefaultSLADays
	}
	return &Generator{
		store:   st,
		calc:    calc,
		logger:  log.WithFields(map[string]interface{}{"component": "occurrence"}),
		audit:   sink,
		slaDays: slaDays,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (g *Generator) SetClock(clock func() time.Time) {
	g.clock = clock
}

// Sweep materializes one occurrence for every recurring task whose
// next_run_date has been reached, then advances the task's next_run_date.
// Reports the number of occurrences created.
func (g *Generator) Sweep(ctx context.Context, orgID string) (int, error) {
	now := g.clock()
	tasks, err := g.store.ListDueTasks(ctx, orgID, now)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, task := range tasks {
		n, err := g.generateForTask(ctx, task)
		if err != nil {
			g.logger.Error("occurrence generation failed", map[string]interface{}{
				"taskId": task.ID,
				"error":  err.Error(),
			})
			continue
		}
		created += n
	}
	return created, nil
}

func (g *Generator) generateForTask(ctx context.Context, task *models.Task) (int, error) {
	if !task.Recurring || task.NextRunDate == nil {
		return 0, nil
	}

	runDate := *task.NextRunDate
	occ := &models.TaskOccurrence{
		ID:             uuid.NewString(),
		TaskID:         task.ID,
		OrgID:          task.OrgID,
		OccurrenceDate: runDate,
		DueDate:        runDate.AddDate(0, 0, g.taskSLA(task)),
		Status:         models.OccurrenceStatusPending,
	}

	created := 0
	err := g.store.CreateOccurrence(ctx, occ)
	switch {
	case err == nil:
		created = 1
		metrics.OccurrencesGenerated.Inc()
		g.logger.Info("occurrence generated", map[string]interface{}{
			"taskId":         task.ID,
			"occurrenceDate": runDate.Format("2006-01-02"),
		})
	case errors.HasCode(err, errors.ErrCodeDuplicateEntity):
		// Another sweep already generated for this run date.
	default:
		return 0, err
	}

	next, ok, err := g.calc.NextOccurrence(task.Schedule, runDate)
	if err != nil {
		return created, err
	}

	expected := task.Version
	if ok {
		task.NextRunDate = &next
	} else {
		// Recurrence exhausted: stop scheduling, keep the task itself.
		task.NextRunDate = nil
	}
	if err := g.store.UpdateTask(ctx, task, expected); err != nil {
		// A concurrent sweep advanced the task first; the occurrence insert
		// above is idempotent so nothing was duplicated.
		if errors.HasCode(err, errors.ErrCodeConcurrentModification) {
			return created, nil
		}
		return created, err
	}
	return created, nil
}

func (g *Generator) taskSLA(task *models.Task) int {
	if task.SLADays > 0 {
		return task.SLADays
	}
	return g.slaDays
}

// SweepOverdue flips pending/in_progress occurrences past their due date to
// overdue. Lost CAS races are skipped; the next sweep settles them.
func (g *Generator) SweepOverdue(ctx context.Context, orgID string) (int, error) {
	now := g.clock()
	occs, err := g.store.ListOverdueOccurrences(ctx, orgID, now)
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, occ := range occs {
		expected := occ.Version
		old := occ.Status
		occ.Status = models.OccurrenceStatusOverdue
		if err := g.store.UpdateOccurrence(ctx, occ, expected); err != nil {
			if errors.HasCode(err, errors.ErrCodeConcurrentModification) {
				continue
			}
			return flipped, err
		}
		flipped++
		metrics.TransitionsApplied.WithLabelValues("occurrence").Inc()
		g.logger.Info("occurrence overdue", map[string]interface{}{
			"occurrenceId": occ.ID,
			"from":         old,
		})
	}
	return flipped, nil
}

// Start moves an occurrence to in_progress.
func (g *Generator) Start(ctx context.Context, actor authz.Actor, orgID, occurrenceID string) error {
	return g.transition(ctx, actor, orgID, occurrenceID, models.OccurrenceStatusInProgress, authz.ActionManageTask)
}

// Complete marks an occurrence done.
func (g *Generator) Complete(ctx context.Context, actor authz.Actor, orgID, occurrenceID string) error {
	return g.transition(ctx, actor, orgID, occurrenceID, models.OccurrenceStatusCompleted, authz.ActionManageTask)
}

// Skip drops an occurrence. Only an explicit operator action may skip.
func (g *Generator) Skip(ctx context.Context, actor authz.Actor, orgID, occurrenceID string) error {
	return g.transition(ctx, actor, orgID, occurrenceID, models.OccurrenceStatusSkipped, authz.ActionSkipOccurrence)
}

func (g *Generator) transition(ctx context.Context, actor authz.Actor, orgID, occurrenceID string, to models.OccurrenceStatus, action authz.Action) error {
	if err := authz.Require(actor, action); err != nil {
		return err
	}

	occ, err := g.store.GetOccurrence(ctx, orgID, occurrenceID)
	if err != nil {
		return err
	}
	if !occCanTransition(occ.Status, to) {
		return errors.NewInvalidTransitionError("occurrence", string(occ.Status), string(to))
	}

	old := occ.Status
	expected := occ.Version
	occ.Status = to
	if err := g.store.UpdateOccurrence(ctx, occ, expected); err != nil {
		return err
	}

	metrics.TransitionsApplied.WithLabelValues("occurrence").Inc()
	g.audit.Record(ctx, audit.Entry{
		EntityType:  "occurrence",
		EntityID:    occ.ID,
		OrgID:       orgID,
		Action:      "transition",
		PerformedBy: actor.ID,
		OldValues:   map[string]interface{}{"status": string(old)},
		NewValues:   map[string]interface{}{"status": string(to)},
		RecordedAt:  g.clock(),
	})
	return nil
}
