package request

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
	"followup-engine/internal/engine/checklist"
	"followup-engine/internal/models"
	"followup-engine/internal/store"
)

const testOrg = "org-1"

var manager = authz.Actor{ID: "mgr-1", Role: authz.RoleManager}

// fakeScheduler records reminder engine calls.
type fakeScheduler struct {
	scheduledRequests []string
	scheduledCycles   []string
	cancelledItems    []string
	cancelledRequests []string
}

func (f *fakeScheduler) ScheduleForRequest(_ context.Context, req *models.DataRequest, _ []*models.RequestChecklistItem) error {
	f.scheduledRequests = append(f.scheduledRequests, req.ID)
	return nil
}

func (f *fakeScheduler) ScheduleForItemCycle(_ context.Context, _ *models.DataRequest, it *models.RequestChecklistItem) error {
	f.scheduledCycles = append(f.scheduledCycles, it.ID)
	return nil
}

func (f *fakeScheduler) CancelForItem(_ context.Context, _, _, itemID string) error {
	f.cancelledItems = append(f.cancelledItems, itemID)
	return nil
}

func (f *fakeScheduler) CancelForRequest(_ context.Context, _, requestID string) error {
	f.cancelledRequests = append(f.cancelledRequests, requestID)
	return nil
}

func newTestService(t *testing.T) (*Service, *store.Memory, *fakeScheduler) {
	t.Helper()
	mem := store.NewMemory()
	sched := &fakeScheduler{}
	svc := NewService(mem, sched, logger.NewTestLogger(t), audit.NopSink{})
	svc.SetClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc, mem, sched
}

func seedRequest(t *testing.T, mem *store.Memory, status models.RequestStatus, channels []models.Channel, items ...*models.RequestChecklistItem) *models.DataRequest {
	t.Helper()
	ctx := context.Background()
	req := &models.DataRequest{
		ID:        "req-1",
		OrgID:     testOrg,
		ClientID:  "cli-1",
		Recipient: "client@example.com",
		Status:    status,
		Priority:  models.PriorityMedium,
		Channels:  channels,
	}
	require.NoError(t, mem.CreateRequest(ctx, req))
	for _, it := range items {
		it.RequestID = req.ID
		it.OrgID = testOrg
		require.NoError(t, mem.CreateItem(ctx, it))
	}
	return req
}

func TestService_Send(t *testing.T) {
	svc, mem, sched := newTestService(t)
	ctx := context.Background()
	seedRequest(t, mem, models.RequestStatusDraft, []models.Channel{models.ChannelEmail},
		&models.RequestChecklistItem{ID: "item-1", Mandatory: true, Status: models.ItemStatusNotReceived})

	require.NoError(t, svc.Send(ctx, manager, testOrg, "req-1"))

	req, err := mem.GetRequest(ctx, testOrg, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusSent, req.Status)
	require.NotNil(t, req.SentAt)
	assert.Equal(t, []string{"req-1"}, sched.scheduledRequests)
}

func TestService_SendGuards(t *testing.T) {
	t.Run("only draft can be sent", func(t *testing.T) {
		svc, mem, _ := newTestService(t)
		seedRequest(t, mem, models.RequestStatusSent, []models.Channel{models.ChannelEmail})

		err := svc.Send(context.Background(), manager, testOrg, "req-1")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTransition))
	})

	t.Run("at least one channel required", func(t *testing.T) {
		svc, mem, _ := newTestService(t)
		seedRequest(t, mem, models.RequestStatusDraft, nil)

		err := svc.Send(context.Background(), manager, testOrg, "req-1")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailed))
	})
}

func TestService_Cancel(t *testing.T) {
	svc, mem, sched := newTestService(t)
	ctx := context.Background()
	seedRequest(t, mem, models.RequestStatusSent, []models.Channel{models.ChannelEmail})

	require.NoError(t, svc.Cancel(ctx, manager, testOrg, "req-1"))

	req, err := mem.GetRequest(ctx, testOrg, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, req.Status)
	assert.Equal(t, []string{"req-1"}, sched.cancelledRequests)

	err = svc.Cancel(ctx, manager, testOrg, "req-1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRequestClosed))
}

func item(id string, mandatory bool, status models.ItemStatus) *models.RequestChecklistItem {
	return &models.RequestChecklistItem{ID: id, Mandatory: mandatory, Status: status}
}

func TestDeriveStatus(t *testing.T) {
	sent := &models.DataRequest{Status: models.RequestStatusSent}

	tests := []struct {
		name  string
		items []*models.RequestChecklistItem
		want  models.RequestStatus
	}{
		{
			name:  "nothing received yet",
			items: []*models.RequestChecklistItem{item("a", true, models.ItemStatusNotReceived)},
			want:  models.RequestStatusSent,
		},
		{
			name: "one item received",
			items: []*models.RequestChecklistItem{
				item("a", true, models.ItemStatusReceived),
				item("b", true, models.ItemStatusNotReceived),
			},
			want: models.RequestStatusInProgress,
		},
		{
			name: "all mandatory approved",
			items: []*models.RequestChecklistItem{
				item("a", true, models.ItemStatusApproved),
				item("b", true, models.ItemStatusApproved),
			},
			want: models.RequestStatusCompleted,
		},
		{
			name: "optional items never block completion",
			items: []*models.RequestChecklistItem{
				item("a", true, models.ItemStatusApproved),
				item("b", false, models.ItemStatusNotReceived),
			},
			want: models.RequestStatusCompleted,
		},
		{
			name: "rejected mandatory item blocks completion",
			items: []*models.RequestChecklistItem{
				item("a", true, models.ItemStatusApproved),
				item("b", true, models.ItemStatusRejected),
			},
			want: models.RequestStatusInProgress,
		},
		{
			name: "re-requested item keeps the request in progress",
			items: []*models.RequestChecklistItem{
				item("a", true, models.ItemStatusReRequested),
			},
			want: models.RequestStatusInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(sent, tt.items))
		})
	}

	t.Run("draft and cancelled are preserved", func(t *testing.T) {
		draft := &models.DataRequest{Status: models.RequestStatusDraft}
		cancelled := &models.DataRequest{Status: models.RequestStatusCancelled}
		items := []*models.RequestChecklistItem{item("a", true, models.ItemStatusApproved)}
		assert.Equal(t, models.RequestStatusDraft, DeriveStatus(draft, items))
		assert.Equal(t, models.RequestStatusCancelled, DeriveStatus(cancelled, items))
	})
}

// TestDeriveStatus_CompletedIffAllMandatoryApproved exhausts every status
// combination of three items (two mandatory, one optional): completed holds
// exactly when both mandatory items are approved, regardless of ordering or
// the optional item's state.
func TestDeriveStatus_CompletedIffAllMandatoryApproved(t *testing.T) {
	statuses := []models.ItemStatus{
		models.ItemStatusNotReceived,
		models.ItemStatusReceived,
		models.ItemStatusUnderReview,
		models.ItemStatusApproved,
		models.ItemStatusRejected,
		models.ItemStatusReRequested,
	}
	sent := &models.DataRequest{Status: models.RequestStatusSent}

	for _, sa := range statuses {
		for _, sb := range statuses {
			for _, sc := range statuses {
				items := []*models.RequestChecklistItem{
					item("a", true, sa),
					item("b", true, sb),
					item("c", false, sc),
				}
				got := DeriveStatus(sent, items)
				wantCompleted := sa == models.ItemStatusApproved && sb == models.ItemStatusApproved
				if wantCompleted {
					assert.Equal(t, models.RequestStatusCompleted, got, "a=%s b=%s c=%s", sa, sb, sc)
				} else {
					assert.NotEqual(t, models.RequestStatusCompleted, got, "a=%s b=%s c=%s", sa, sb, sc)
				}
			}
		}
	}
}

func TestService_HandleItemChange(t *testing.T) {
	t.Run("approval cancels the item's reminders and completes the request", func(t *testing.T) {
		svc, mem, sched := newTestService(t)
		ctx := context.Background()
		seedRequest(t, mem, models.RequestStatusInProgress, []models.Channel{models.ChannelEmail},
			item("item-1", true, models.ItemStatusApproved))

		svc.HandleItemChange(ctx, checklist.Event{
			OrgID:     testOrg,
			RequestID: "req-1",
			ItemID:    "item-1",
			Old:       models.ItemStatusUnderReview,
			New:       models.ItemStatusApproved,
		})

		req, err := mem.GetRequest(ctx, testOrg, "req-1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusCompleted, req.Status)
		require.NotNil(t, req.CompletedAt)
		assert.Equal(t, []string{"item-1"}, sched.cancelledItems)
		assert.Equal(t, []string{"req-1"}, sched.cancelledRequests)
	})

	t.Run("re-request starts a fresh reminder cycle", func(t *testing.T) {
		svc, mem, sched := newTestService(t)
		ctx := context.Background()
		seedRequest(t, mem, models.RequestStatusInProgress, []models.Channel{models.ChannelEmail},
			item("item-1", true, models.ItemStatusReRequested))

		svc.HandleItemChange(ctx, checklist.Event{
			OrgID:     testOrg,
			RequestID: "req-1",
			ItemID:    "item-1",
			Old:       models.ItemStatusUnderReview,
			New:       models.ItemStatusReRequested,
			Cycle:     1,
		})

		assert.Equal(t, []string{"item-1"}, sched.cancelledItems, "old cycle is dropped first")
		assert.Equal(t, []string{"item-1"}, sched.scheduledCycles)
	})
}

// Two mandatory items: A approved, B rejected. The request must stay
// in_progress, and reopening B keeps it there until B is finally approved.
func TestService_MixedReviewOutcome(t *testing.T) {
	svc, mem, sched := newTestService(t)
	ctx := context.Background()
	seedRequest(t, mem, models.RequestStatusSent, []models.Channel{models.ChannelEmail})

	machine := checklist.NewMachine(mem, logger.NewTestLogger(t), audit.NopSink{})
	machine.OnChange(svc.HandleItemChange)

	for _, it := range []*models.RequestChecklistItem{
		item("item-a", true, models.ItemStatusNotReceived),
		item("item-b", true, models.ItemStatusNotReceived),
	} {
		it.RequestID = "req-1"
		it.OrgID = testOrg
		require.NoError(t, mem.CreateItem(ctx, it))
	}

	cli := authz.Actor{ID: "cli-1", Role: authz.RoleClient}
	require.NoError(t, machine.Submit(ctx, cli, testOrg, "item-a"))
	require.NoError(t, machine.Submit(ctx, cli, testOrg, "item-b"))
	require.NoError(t, machine.Review(ctx, manager, testOrg, "item-a", models.ItemStatusApproved, "", ""))
	require.NoError(t, machine.Review(ctx, manager, testOrg, "item-b", models.ItemStatusRejected, "", "wrong period"))

	req, err := mem.GetRequest(ctx, testOrg, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusInProgress, req.Status)

	// Reopen collection for B and run it to approval.
	require.NoError(t, machine.Review(ctx, manager, testOrg, "item-b", models.ItemStatusReRequested, "please resend", ""))
	assert.Contains(t, sched.scheduledCycles, "item-b")

	require.NoError(t, machine.Submit(ctx, cli, testOrg, "item-b"))
	require.NoError(t, machine.Review(ctx, manager, testOrg, "item-b", models.ItemStatusApproved, "", ""))

	req, err = mem.GetRequest(ctx, testOrg, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCompleted, req.Status)
}

func TestService_CreateFromTemplate(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	tpl := &models.Template{
		ID:       "tpl-1",
		OrgID:    testOrg,
		Name:     "Monthly compliance pack",
		TaskType: models.TaskTypeRecurring,
		Items: []models.ChecklistItemDef{
			{Particular: "Bank statement", DocumentType: "pdf", Mandatory: true},
			{Particular: "Board minutes", DocumentType: "pdf", Mandatory: false},
		},
		DefaultPriority: models.PriorityHigh,
		SLADays:         7,
		Version:         3,
	}
	require.NoError(t, mem.CreateTemplate(ctx, tpl))

	req, err := svc.CreateFromTemplate(ctx, manager, testOrg, "tpl-1", "cli-1", "client@example.com",
		[]models.Channel{models.ChannelEmail, models.ChannelWhatsApp}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusDraft, req.Status)
	assert.Equal(t, 3, req.TemplateVersion)
	assert.Equal(t, models.PriorityHigh, req.Priority)
	require.NotNil(t, req.DueDate)
	assert.Equal(t, time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC), *req.DueDate)

	items, err := mem.ListItems(ctx, testOrg, req.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, models.ItemStatusNotReceived, it.Status)
	}
}
