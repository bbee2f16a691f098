package cluster

import (
	"context"
	"time"

	"github.com/openshift/build-orchestrator/pkg/clock"
	orcherrors "github.com/openshift/build-orchestrator/pkg/errors"
)

// WaitForAny sleeps until the earliest non-failed retry deadline among
// contexts, or returns an AllClustersFailed-class error if every context
// has reached its failure limit. The sleep duration is rounded up to the
// next whole second rather than truncated down, so a context that becomes
// ready mid-second is never missed.
func WaitForAny(ctx context.Context, platform string, contexts map[string]*RetryContext, c clock.Clock) error {
	now := c.Now()
	var earliest time.Time
	found := false
	for _, rc := range contexts {
		if rc.IsFailed() {
			continue
		}
		if !found || rc.retryAt.Before(earliest) {
			earliest = rc.retryAt
			found = true
		}
	}
	if !found {
		return orcherrors.NewAllClustersFailedError(platform)
	}

	wait := earliest.Sub(now)
	if wait < 0 {
		wait = 0
	} else {
		wait = roundUpToSecond(wait)
	}

	if wait == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.Sleep(wait)
	return nil
}

func roundUpToSecond(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}
