// Package job holds queue-side domain logic shared by the solve service and
// the runner: lease normalisation and job availability notification.
package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// maxLeaseSeconds caps resolved leases so they always fit the integer column
// the queue works in.
const maxLeaseSeconds = math.MaxInt32

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the caller supplied a positive duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the default duration was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the requested duration was out of range and
	// was clamped to a supported value.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy turns requested lease durations into the whole seconds the jobs
// table stores. Leases are short relative to solve timeouts; a worker extends
// its lease with heartbeats while the solver runs, so the policy only has to
// keep individual grants sane.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool {
	return d.Source == LeaseSourceDefault
}

// Clamped reports whether the requested value was out of range.
func (d LeaseDecision) Clamped() bool {
	return d.Source == LeaseSourceClamped
}

// Resolve normalises a requested duration to whole seconds. Zero means "use
// the default"; positive values round up so a lease is never shorter than
// what was asked for; negative values clamp to the one second minimum.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	decision := LeaseDecision{Requested: request}

	switch {
	case p == nil:
		decision.Seconds = 1
		decision.Source = LeaseSourceClamped
	case request == 0:
		decision.Seconds, _ = ceilSeconds(p.defaultLease)
		decision.Source = LeaseSourceDefault
	case request < 0:
		decision.Seconds = 1
		decision.Source = LeaseSourceClamped
	default:
		var capped bool
		decision.Seconds, capped = ceilSeconds(request)
		decision.Source = LeaseSourceExplicit
		if capped {
			decision.Source = LeaseSourceClamped
		}
	}
	return decision
}

// ceilSeconds converts d to seconds, rounding partial seconds up. The second
// return reports whether the value hit the upper cap.
func ceilSeconds(d time.Duration) (int, bool) {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		return 1, false
	}
	if secs > maxLeaseSeconds {
		return maxLeaseSeconds, true
	}
	return int(secs), false
}
