// Package sweep drives the periodic engine jobs: occurrence generation,
// overdue detection and reminder dispatch. Orgs are swept concurrently, one
// goroutine per org; a redis lease keeps the same job for the same org from
// running twice across processes.
package sweep

import (
	"context"
	"sync"
	"time"

	"followup-engine/internal/common/logger"
	"followup-engine/internal/common/metrics"
	"followup-engine/internal/common/observability"
	"followup-engine/internal/store"
)

// JobFunc runs one sweep for one org and reports how many entities it acted
// on.
type JobFunc func(ctx context.Context, orgID string) (int, error)

// Job is a named periodic sweep. Leased jobs are skipped when another
// process holds the org's lease; unleased jobs coordinate on their own.
type Job struct {
	Name   string
	Run    JobFunc
	Leased bool
}

type Runner struct {
	orgs     store.OrgLister
	lease    *store.Lease
	jobs     []Job
	interval time.Duration
	logger   logger.Logger
	obs      *observability.Observability

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRunner(orgs store.OrgLister, lease *store.Lease, log logger.Logger, obs *observability.Observability, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		orgs:     orgs,
		lease:    lease,
		interval: interval,
		logger:   log.WithFields(map[string]interface{}{"component": "sweep"}),
		obs:      obs,
		stop:     make(chan struct{}),
	}
}

// AddJob registers a job. Not safe to call after Start.
func (r *Runner) AddJob(job Job) {
	r.jobs = append(r.jobs, job)
}

// Start runs sweeps on the configured interval until Stop is called or ctx
// is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				r.RunOnce(ctx)
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the ticker and waits for in-flight sweeps to finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// RunOnce sweeps every org once, concurrently, and waits for completion.
func (r *Runner) RunOnce(ctx context.Context) {
	orgIDs, err := r.orgs.ListOrgIDs(ctx)
	if err != nil {
		r.logger.Error("org listing failed", map[string]interface{}{"error": err.Error()})
		return
	}

	var wg sync.WaitGroup
	for _, orgID := range orgIDs {
		wg.Add(1)
		go func(orgID string) {
			defer wg.Done()
			r.sweepOrg(ctx, orgID)
		}(orgID)
	}
	wg.Wait()
}

func (r *Runner) sweepOrg(ctx context.Context, orgID string) {
	for _, job := range r.jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.runJob(ctx, job, orgID)
	}
}

func (r *Runner) runJob(ctx context.Context, job Job, orgID string) {
	if job.Leased && r.lease != nil {
		key := job.Name + ":" + orgID
		token, ok, err := r.lease.Acquire(ctx, key)
		if err != nil {
			r.logger.Error("lease acquire failed", map[string]interface{}{
				"job":   job.Name,
				"orgId": orgID,
				"error": err.Error(),
			})
			return
		}
		if !ok {
			metrics.SweepRuns.WithLabelValues(job.Name, "skipped").Inc()
			return
		}
		defer func() {
			if err := r.lease.Release(ctx, key, token); err != nil {
				r.logger.Warn("lease release failed", map[string]interface{}{"key": key, "error": err.Error()})
			}
		}()
	}

	start := time.Now()
	n, err := job.Run(ctx, orgID)
	elapsed := time.Since(start)

	metrics.SweepDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())
	if r.obs != nil {
		r.obs.RecordSweepDuration(ctx, job.Name, elapsed)
	}

	if err != nil {
		metrics.SweepRuns.WithLabelValues(job.Name, "error").Inc()
		if r.obs != nil {
			r.obs.RecordSweep(ctx, job.Name, "error")
		}
		r.logger.Error("sweep failed", map[string]interface{}{
			"job":   job.Name,
			"orgId": orgID,
			"error": err.Error(),
		})
		return
	}

	metrics.SweepRuns.WithLabelValues(job.Name, "success").Inc()
	if r.obs != nil {
		r.obs.RecordSweep(ctx, job.Name, "success")
	}
	if n > 0 {
		r.logger.Info("sweep completed", map[string]interface{}{
			"job":      job.Name,
			"orgId":    orgID,
			"affected": n,
		})
	}
}
