package reminder

import (
	"math"
	"time"

	"followup-engine/internal/common/config"
)

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// BackoffPolicy computes the reschedule delay after a failed dispatch.
type BackoffPolicy struct {
	Kind   string
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// NewBackoffPolicy builds a policy from configuration, falling back to a
// fixed 5 minute delay capped at one day.
func NewBackoffPolicy(cfg config.BackoffConfig) BackoffPolicy {
	p := BackoffPolicy{
		Kind:   cfg.Kind,
		Base:   time.Duration(cfg.BaseSeconds) * time.Second,
		Factor: cfg.Factor,
		Max:    time.Duration(cfg.MaxSeconds) * time.Second,
	}
	if p.Kind != BackoffExponential {
		p.Kind = BackoffFixed
	}
	if p.Base <= 0 {
		p.Base = 5 * time.Minute
	}
	if p.Factor <= 1 {
		p.Factor = 2
	}
	if p.Max <= 0 {
		p.Max = 24 * time.Hour
	}
	return p
}

// Delay returns the wait before the attempt numbered retryCount (1-based:
// the delay after the first failure is Delay(1)).
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := p.Base
	if p.Kind == BackoffExponential {
		d = time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(retryCount-1)))
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}
