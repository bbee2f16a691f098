// Package dispatch drives a single platform from cluster selection
// through a terminal worker build, rotating to an alternate cluster on
// transient failure.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/openshift/build-orchestrator/pkg/clock"
	"github.com/openshift/build-orchestrator/pkg/cluster"
	orcherrors "github.com/openshift/build-orchestrator/pkg/errors"
	"github.com/openshift/build-orchestrator/pkg/log"
	"github.com/openshift/build-orchestrator/pkg/worker"
	"github.com/openshift/build-orchestrator/pkg/workspace"
)

// Config bundles everything a Dispatcher needs to run one platform.
type Config struct {
	Clusters              cluster.ConfigProvider
	NewClient             cluster.ClientFactory
	BuildKwargs           map[string]interface{}
	Release               string
	IsAuto                bool
	FilesystemKojiTaskID  *int64
	KojiUploadDir         string
	FindClusterRetryDelay time.Duration
	FailureRetryDelay     time.Duration
	MaxClusterFails       int
	Clock                 clock.Clock
	Logger                log.Logger
}

// Dispatcher drives one platform to one terminal worker.BuildInfo.
type Dispatcher struct {
	cfg       Config
	workspace *workspace.Workspace
}

// New returns a Dispatcher sharing ws for overrides and published state.
func New(cfg Config, ws *workspace.Workspace) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.None
	}
	return &Dispatcher{cfg: cfg, workspace: ws}
}

// SelectAndStartCluster chooses a cluster and starts a build on it,
// rotating through candidates on transient failure until one succeeds or
// every cluster is exhausted.
func (d *Dispatcher) SelectAndStartCluster(ctx context.Context, platform string) (*worker.BuildInfo, error) {
	clusters, err := d.cfg.Clusters.EnabledClustersFor(platform)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, orcherrors.NewUnknownPlatformError(platform)
	}

	retryContexts := make(map[string]*cluster.RetryContext, len(clusters))
	for _, c := range clusters {
		retryContexts[c.Name] = cluster.NewRetryContextWithClock(d.cfg.MaxClusterFails, d.cfg.Clock)
	}

	selector := &cluster.Selector{
		Clock:         d.cfg.Clock,
		Logger:        d.cfg.Logger,
		NewClient:     d.cfg.NewClient,
		FindRetryWait: d.cfg.FindClusterRetryDelay,
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := selector.GetClusters(ctx, platform, retryContexts, clusters)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			// AllClustersFailed: recorded as a sentinel BuildInfo, not a
			// raised error.
			info := &worker.BuildInfo{Platform: platform, MonitorErr: err}
			d.workspace.SetBuildInfo(platform, info)
			return info, nil
		}

		for _, ci := range candidates {
			info, buildErr := d.doWorkerBuild(ctx, ci)
			if buildErr != nil {
				retryContexts[ci.Cluster.Name].TryAgainLater(d.cfg.FailureRetryDelay)
				continue
			}
			d.workspace.SetBuildInfo(platform, info)
			return info, nil
		}
		// No candidate succeeded this round; the outer loop re-probes,
		// which will wait on the earliest retry deadline.
	}
}

// doWorkerBuild creates and monitors one worker build on ci's cluster. It
// returns a non-nil error only for a transient client failure during
// creation, so the caller rotates to the next cluster; any other outcome
// (success, monitor failure, or a non-transient creation error) produces
// exactly one BuildInfo and a nil error.
func (d *Dispatcher) doWorkerBuild(ctx context.Context, ci cluster.Info) (*worker.BuildInfo, error) {
	overrides := d.workspace.OverrideKwargs()
	kwargs := d.composeKwargs(ci.Platform)
	for k, v := range overrides {
		kwargs[k] = v
	}

	createCtx := cluster.WithRetriesDisabled(ctx)
	build, err := ci.Client.CreateWorkerBuild(createCtx, kwargs)

	info := &worker.BuildInfo{Platform: ci.Platform, Cluster: ci.Cluster, Client: ci.Client}

	if err != nil {
		if isTransient(err) {
			d.cfg.Logger.Errorf("%s - failed to create worker build on cluster %s: %v", ci.Platform, ci.Cluster.Name, err)
			return nil, err
		}
		// Non-transient: the error is swallowed rather than aborting the
		// platform, but is still surfaced as this platform's fail reason
		// instead of silently leaving build=nil with no explanation.
		d.cfg.Logger.Errorf("%s - failed to create worker build on cluster %s (non-transient, not retrying): %v", ci.Platform, ci.Cluster.Name, err)
		info.MonitorErr = err
		return info, nil
	}

	info.Build = build
	d.cfg.Logger.Infof("%s - created build %s on cluster %s.", ci.Platform, build.Name(), ci.Cluster.Name)

	if watchErr := info.WatchLogs(ctx, d.cfg.Logger); watchErr != nil {
		info.MonitorErr = watchErr
	} else if waitErr := info.WaitToFinish(ctx); waitErr != nil {
		info.MonitorErr = waitErr
	}

	if info.MonitorErr != nil {
		d.cfg.Logger.Errorf("%s - failed to monitor worker build: %v", ci.Platform, info.MonitorErr)
		if cancelErr := info.CancelBuild(ctx); cancelErr != nil {
			d.cfg.Logger.V(2).Infof("%s - best-effort cancel of %s failed: %v", ci.Platform, info.Name(), cancelErr)
		}
	}

	return info, nil
}

func (d *Dispatcher) composeKwargs(platform string) map[string]interface{} {
	kwargs := deepCopyKwargs(d.cfg.BuildKwargs)
	delete(kwargs, "architecture")
	kwargs["release"] = d.cfg.Release
	kwargs["platform"] = platform
	kwargs["koji_upload_dir"] = d.cfg.KojiUploadDir
	kwargs["is_auto"] = d.cfg.IsAuto
	if d.cfg.FilesystemKojiTaskID != nil {
		kwargs["filesystem_koji_task_id"] = *d.cfg.FilesystemKojiTaskID
	}
	return kwargs
}

func isTransient(err error) bool {
	var te cluster.TransientError
	if errors.As(err, &te) {
		return te.IsTransient()
	}
	return false
}

// deepCopyKwargs clones base so that per-platform mutation (the
// architecture removal, the computed fields, workspace overrides) never
// aliases nested maps/slices shared across the concurrently-dispatched
// platforms. Values round-trip through JSON, matching the original
// Python's deepcopy(self.build_kwargs); a value that can't be marshaled
// falls back to a shallow copy of that key rather than dropping it.
func deepCopyKwargs(base map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+4)
	for k, v := range base {
		raw, err := json.Marshal(v)
		if err != nil {
			out[k] = v
			continue
		}
		var clone interface{}
		if err := json.Unmarshal(raw, &clone); err != nil {
			out[k] = v
			continue
		}
		out[k] = clone
	}
	return out
}
