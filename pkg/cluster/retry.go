package cluster

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/openshift/build-orchestrator/pkg/clock"
)

// RetryContext is the per-(platform, cluster) failure counter and
// retry-wait deadline. Dead clusters (fails >= maxFails) never recover
// within the context's lifetime.
type RetryContext struct {
	breaker  *gobreaker.CircuitBreaker
	retryAt  time.Time
	clock    clock.Clock
	maxFails int
}

// NewRetryContext builds a fresh context for one cluster. maxFails is the
// number of failures before the cluster is considered dead.
func NewRetryContext(maxFails int) *RetryContext {
	return NewRetryContextWithClock(maxFails, clock.Real{})
}

// NewRetryContextWithClock is NewRetryContext with an injectable clock,
// for deterministic tests.
func NewRetryContextWithClock(maxFails int, c clock.Clock) *RetryContext {
	settings := gobreaker.Settings{
		MaxRequests: 0,
		Interval:    0,
		// Timeout governs gobreaker's own open->half-open transition;
		// the context tracks its own variable retry-wait window instead
		// (see retryAt), so this never needs to fire in practice.
		Timeout: 24 * 365 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFails)
		},
	}
	return &RetryContext{
		breaker:  gobreaker.NewCircuitBreaker(settings),
		clock:    c,
		maxFails: maxFails,
	}
}

// IsFailed reports whether this cluster has reached its failure limit and
// should never be attempted again in this run.
func (c *RetryContext) IsFailed() bool {
	if c.maxFails <= 0 {
		return false
	}
	return c.breaker.State() == gobreaker.StateOpen
}

// InRetryWait reports whether the cluster is within its temporary
// cooldown window and should be skipped, without counting against it.
func (c *RetryContext) InRetryWait(now time.Time) bool {
	return now.Before(c.retryAt)
}

// TryAgainLater records a failure and puts the cluster in retry-wait for
// delay. Once the cluster is dead, this is a no-op: no further fails are
// counted and retryAt is not advanced.
func (c *RetryContext) TryAgainLater(delay time.Duration) {
	if c.IsFailed() {
		return
	}
	_, _ = c.breaker.Execute(func() (interface{}, error) {
		return nil, errClusterAttemptFailed
	})
	c.retryAt = c.clock.Now().Add(delay)
}

type errClusterAttemptFailedType struct{}

func (errClusterAttemptFailedType) Error() string { return "cluster attempt failed" }

var errClusterAttemptFailed error = errClusterAttemptFailedType{}
