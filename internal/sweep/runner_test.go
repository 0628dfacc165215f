package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followup-engine/internal/common/logger"
	"followup-engine/internal/store"
)

type staticOrgs []string

func (s staticOrgs) ListOrgIDs(context.Context) ([]string, error) {
	return s, nil
}

func newLease(t *testing.T, ttl time.Duration) (*store.Lease, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return store.NewLease(rdb, ttl), mr
}

func TestRunner_RunOnceSweepsEveryOrg(t *testing.T) {
	lease, _ := newLease(t, time.Minute)
	r := NewRunner(staticOrgs{"org-1", "org-2", "org-3"}, lease, logger.NewTestLogger(t), nil, time.Minute)

	var mu sync.Mutex
	seen := make(map[string]int)
	r.AddJob(Job{
		Name:   "generate",
		Leased: true,
		Run: func(_ context.Context, orgID string) (int, error) {
			mu.Lock()
			seen[orgID]++
			mu.Unlock()
			return 1, nil
		},
	})

	r.RunOnce(context.Background())

	assert.Equal(t, map[string]int{"org-1": 1, "org-2": 1, "org-3": 1}, seen)
}

func TestRunner_LeaseSkipsHeldOrg(t *testing.T) {
	lease, _ := newLease(t, time.Minute)
	ctx := context.Background()

	// Another process holds org-1's lease for this job.
	_, ok, err := lease.Acquire(ctx, "generate:org-1")
	require.NoError(t, err)
	require.True(t, ok)

	r := NewRunner(staticOrgs{"org-1", "org-2"}, lease, logger.NewTestLogger(t), nil, time.Minute)

	var mu sync.Mutex
	var ran []string
	r.AddJob(Job{
		Name:   "generate",
		Leased: true,
		Run: func(_ context.Context, orgID string) (int, error) {
			mu.Lock()
			ran = append(ran, orgID)
			mu.Unlock()
			return 0, nil
		},
	})

	r.RunOnce(ctx)

	assert.Equal(t, []string{"org-2"}, ran)
}

func TestRunner_LeaseReleasedAfterJob(t *testing.T) {
	lease, _ := newLease(t, time.Minute)
	ctx := context.Background()

	r := NewRunner(staticOrgs{"org-1"}, lease, logger.NewTestLogger(t), nil, time.Minute)
	r.AddJob(Job{
		Name:   "generate",
		Leased: true,
		Run:    func(context.Context, string) (int, error) { return 0, nil },
	})

	r.RunOnce(ctx)

	// The lease must be free again.
	_, ok, err := lease.Acquire(ctx, "generate:org-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunner_JobsRunInOrderPerOrg(t *testing.T) {
	lease, _ := newLease(t, time.Minute)
	r := NewRunner(staticOrgs{"org-1"}, lease, logger.NewTestLogger(t), nil, time.Minute)

	var order []string
	for _, name := range []string{"generate", "overdue", "reminders"} {
		name := name
		r.AddJob(Job{
			Name: name,
			Run: func(context.Context, string) (int, error) {
				order = append(order, name)
				return 0, nil
			},
		})
	}

	r.RunOnce(context.Background())
	assert.Equal(t, []string{"generate", "overdue", "reminders"}, order)
}

func TestRunner_StartStop(t *testing.T) {
	lease, _ := newLease(t, time.Minute)
	r := NewRunner(staticOrgs{"org-1"}, lease, logger.NewTestLogger(t), nil, 10*time.Millisecond)

	var mu sync.Mutex
	runs := 0
	r.AddJob(Job{
		Name: "generate",
		Run: func(context.Context, string) (int, error) {
			mu.Lock()
			runs++
			mu.Unlock()
			return 0, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 3
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	mu.Lock()
	after := runs
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, runs, "no sweeps after Stop")
	mu.Unlock()
}
