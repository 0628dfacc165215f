package template

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followup-engine/internal/audit"
	"followup-engine/internal/common/errors"
	"followup-engine/internal/common/logger"
	"followup-engine/internal/engine/authz"
	"followup-engine/internal/models"
	"followup-engine/internal/store"
)

const testOrg = "org-1"

var admin = authz.Actor{ID: "adm-1", Role: authz.RoleAdmin}

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc, err := NewService(mem, logger.NewTestLogger(t), audit.NopSink{})
	require.NoError(t, err)
	svc.SetClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc, mem
}

func validTemplate() *models.Template {
	return &models.Template{
		OrgID:    testOrg,
		Name:     "Monthly compliance pack",
		TaskType: models.TaskTypeRecurring,
		Schedule: models.ScheduleRule{
			Frequency: models.FrequencyMonthly,
			DayRule:   "1st",
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Items: []models.ChecklistItemDef{
			{Particular: "Bank statement", DocumentType: "pdf", Mandatory: true},
			{Particular: "Reconciliation", Mandatory: true, DependsOn: "Bank statement"},
		},
		DefaultPriority: models.PriorityMedium,
		SLADays:         7,
	}
}

func TestService_Create(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	tpl, err := svc.Create(ctx, admin, validTemplate())
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.Version)
	assert.Equal(t, admin.ID, tpl.CreatedBy)

	got, err := mem.GetTemplate(ctx, testOrg, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.Template)
		wantCode errors.ErrorCode
	}{
		{
			name:     "missing name",
			mutate:   func(tpl *models.Template) { tpl.Name = "" },
			wantCode: errors.ErrCodeValidationFailed,
		},
		{
			name:     "unknown task type",
			mutate:   func(tpl *models.Template) { tpl.TaskType = "sometimes" },
			wantCode: errors.ErrCodeValidationFailed,
		},
		{
			name:     "recurring without frequency",
			mutate:   func(tpl *models.Template) { tpl.Schedule.Frequency = "" },
			wantCode: errors.ErrCodeInvalidSchedule,
		},
		{
			name: "start after end",
			mutate: func(tpl *models.Template) {
				end := tpl.Schedule.StartDate.AddDate(0, 0, -1)
				tpl.Schedule.EndDate = &end
			},
			wantCode: errors.ErrCodeInvalidSchedule,
		},
		{
			name:     "empty checklist",
			mutate:   func(tpl *models.Template) { tpl.Items = nil },
			wantCode: errors.ErrCodeValidationFailed,
		},
		{
			name: "item without particular",
			mutate: func(tpl *models.Template) {
				tpl.Items = []models.ChecklistItemDef{{DocumentType: "pdf"}}
			},
			wantCode: errors.ErrCodeValidationFailed,
		},
		{
			name: "dangling depends_on",
			mutate: func(tpl *models.Template) {
				tpl.Items = []models.ChecklistItemDef{
					{Particular: "Reconciliation", DependsOn: "Bank statement"},
				}
			},
			wantCode: errors.ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			tpl := validTemplate()
			tt.mutate(tpl)

			_, err := svc.Create(context.Background(), admin, tpl)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestService_NewVersion(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	tpl, err := svc.Create(ctx, admin, validTemplate())
	require.NoError(t, err)

	bumped, err := svc.NewVersion(ctx, admin, testOrg, tpl.ID, func(t *models.Template) {
		t.Items = append(t.Items, models.ChecklistItemDef{Particular: "Board minutes"})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, bumped.Version)

	got, err := mem.GetTemplate(ctx, testOrg, tpl.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 3)
	assert.Equal(t, 2, got.Version)
}

func TestService_NewVersionValidatesEdit(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	tpl, err := svc.Create(ctx, admin, validTemplate())
	require.NoError(t, err)

	_, err = svc.NewVersion(ctx, admin, testOrg, tpl.ID, func(t *models.Template) {
		t.Items = nil
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))

	got, err := mem.GetTemplate(ctx, testOrg, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version, "failed edit leaves the stored template untouched")
}

func TestService_ManageRequiresPrivilegedRole(t *testing.T) {
	svc, _ := newTestService(t)

	member := authz.Actor{ID: "tm-1", Role: authz.RoleTeamMember}
	_, err := svc.Create(context.Background(), member, validTemplate())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}
