package cluster

import (
	"context"
	"sort"
	"time"

	"github.com/openshift/build-orchestrator/pkg/clock"
	"github.com/openshift/build-orchestrator/pkg/log"
)

// ClientFactory builds a live Client for a (cluster, platform) pair,
// freshly constructed from that cluster's connection config for every
// probe.
type ClientFactory func(ctx context.Context, c Cluster, platform string) (Client, error)

// Selector enumerates candidate clusters for a platform, probes their
// load, skips dead or cooling-down ones, and returns them ordered by
// (priority asc, load asc).
type Selector struct {
	Clock         clock.Clock
	Logger        log.Logger
	NewClient     ClientFactory
	FindRetryWait time.Duration
}

// GetClusters enumerates live candidates for platform, ordered by
// priority then load.
func (s *Selector) GetClusters(ctx context.Context, platform string, retryContexts map[string]*RetryContext, all []Cluster) ([]Info, error) {
	candidates := make([]Cluster, len(all))
	copy(candidates, all)
	probed := map[string]Info{}

	for len(candidates) > 0 && len(probed) == 0 {
		if err := WaitForAny(ctx, platform, retryContexts, s.Clock); err != nil {
			return nil, err
		}

		sorted := make([]Cluster, len(candidates))
		copy(sorted, candidates)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Priority < sorted[j].Priority
		})

		for _, c := range sorted {
			rc := retryContexts[c.Name]
			if rc.IsFailed() || rc.InRetryWait(s.Clock.Now()) {
				continue
			}

			probeCtx := WithRetriesDisabled(ctx)
			client, err := s.NewClient(probeCtx, c, platform)
			if err != nil {
				rc.TryAgainLater(s.FindRetryWait)
				continue
			}

			active, err := client.ActiveBuildCount(probeCtx)
			if err != nil {
				rc.TryAgainLater(s.FindRetryWait)
				continue
			}

			load := loadOf(active, c.MaxConcurrentBuilds)
			s.Logger.V(2).Infof("enabled cluster %s for platform %s has load %v and active builds %d/%d",
				c.Name, platform, load, active, c.MaxConcurrentBuilds)
			probed[c.Name] = Info{Cluster: c, Platform: platform, Client: client, Load: load}
		}

		remaining := candidates[:0]
		for _, c := range candidates {
			if !retryContexts[c.Name].IsFailed() {
				remaining = append(remaining, c)
			}
		}
		candidates = remaining
	}

	ret := make([]Info, 0, len(probed))
	for _, info := range probed {
		ret = append(ret, info)
	}
	// Sort by load first, then stably by priority, so priority remains
	// the primary key (a stable sort on the secondary key first, then
	// the primary key, yields correct tie-breaking).
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].Load < ret[j].Load })
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].Cluster.Priority < ret[j].Cluster.Priority })
	return ret, nil
}

func loadOf(active, maxConcurrent int) float64 {
	if maxConcurrent <= 0 {
		return 0
	}
	return float64(active) / float64(maxConcurrent)
}
