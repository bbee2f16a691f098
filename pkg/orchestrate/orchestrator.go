// Package orchestrate ties platform resolution, concurrent per-platform
// dispatch, and result aggregation together into a single build run.
package orchestrate

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openshift/build-orchestrator/pkg/clock"
	"github.com/openshift/build-orchestrator/pkg/cluster"
	"github.com/openshift/build-orchestrator/pkg/descriptor"
	"github.com/openshift/build-orchestrator/pkg/dispatch"
	"github.com/openshift/build-orchestrator/pkg/log"
	"github.com/openshift/build-orchestrator/pkg/manifest"
	"github.com/openshift/build-orchestrator/pkg/recipe"
	"github.com/openshift/build-orchestrator/pkg/workspace"
)

// Defaults for the retry/backoff knobs.
const (
	DefaultFindClusterRetryDelay = 15 * time.Second
	DefaultFailureRetryDelay     = 10 * time.Second
	DefaultMaxClusterFails       = 20
)

// ClientFactory builds a cluster.Client for one (cluster, platform) pair,
// with the worker build image the descriptor resolved already in hand.
type ClientFactory func(ctx context.Context, c cluster.Cluster, platform, buildImage string) (cluster.Client, error)

// Config bundles everything Run needs across every platform.
type Config struct {
	// Platforms is the full set of platforms requested for this build,
	// before container.yaml narrows it.
	Platforms   []string
	BuildKwargs map[string]interface{}

	Clusters  cluster.ConfigProvider
	NewClient ClientFactory

	// ManifestPath is the container.yaml path to consult, if any. Empty
	// means no manifest-based narrowing.
	ManifestPath string

	// BuildDescriptorEnvVar defaults to descriptor.EnvVar.
	BuildDescriptorEnvVar string

	Release      recipe.ReleaseLabelReader
	PriorResults recipe.PriorResults
	IsAuto       bool

	// WorkerBuildImage is deprecated and ignored; a non-empty value only
	// logs a warning. The image worker builds inherit always comes from
	// the build descriptor now.
	WorkerBuildImage string

	FindClusterRetryDelay time.Duration
	FailureRetryDelay     time.Duration
	MaxClusterFails       int

	Clock  clock.Clock
	Logger log.Logger
}

// Orchestrator runs one build: it resolves platforms and the worker build
// image once, then dispatches every resolved platform concurrently.
type Orchestrator struct {
	cfg           Config
	workspace     *workspace.Workspace
	kojiUploadDir string
}

// New validates defaults and mints the run's koji upload directory. The
// directory is minted exactly once, here, so every platform's worker build
// shares it even though platforms dispatch independently.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.None
	}
	if cfg.Release == nil {
		cfg.Release = recipe.StaticRelease("")
	}
	if cfg.PriorResults == nil {
		cfg.PriorResults = recipe.NoPriorResults{}
	}
	if cfg.BuildDescriptorEnvVar == "" {
		cfg.BuildDescriptorEnvVar = descriptor.EnvVar
	}
	if cfg.FindClusterRetryDelay == 0 {
		cfg.FindClusterRetryDelay = DefaultFindClusterRetryDelay
	}
	if cfg.FailureRetryDelay == 0 {
		cfg.FailureRetryDelay = DefaultFailureRetryDelay
	}
	if cfg.MaxClusterFails == 0 {
		cfg.MaxClusterFails = DefaultMaxClusterFails
	}
	if cfg.WorkerBuildImage != "" {
		cfg.Logger.Warning("worker_build_image is deprecated")
	}

	o := &Orchestrator{cfg: cfg, workspace: workspace.New()}
	o.kojiUploadDir = mintKojiUploadDir(cfg.Clock.Now())
	o.workspace.SetKojiUploadDir(o.kojiUploadDir)
	return o, nil
}

// Workspace exposes the run's shared registry, e.g. so a caller can set
// build-kwarg overrides before calling Run.
func (o *Orchestrator) Workspace() *workspace.Workspace {
	return o.workspace
}

// Run resolves the worker build image and platform set, dispatches every
// platform concurrently, and aggregates the terminal per-platform build
// handles into one BuildResult.
func (o *Orchestrator) Run(ctx context.Context) (*BuildResult, error) {
	buildImage, err := descriptor.BuildImage(o.cfg.BuildDescriptorEnvVar)
	if err != nil {
		return nil, err
	}

	release, err := o.cfg.Release.ReleaseLabel()
	if err != nil {
		return nil, err
	}

	fsTaskID, err := o.filesystemKojiTaskID()
	if err != nil {
		return nil, err
	}

	platforms, err := o.resolvePlatforms()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for _, platform := range platforms {
		platform := platform
		g.Go(func() error {
			d := dispatch.New(dispatch.Config{
				Clusters: o.cfg.Clusters,
				NewClient: func(ctx context.Context, c cluster.Cluster, platform string) (cluster.Client, error) {
					return o.cfg.NewClient(ctx, c, platform, buildImage)
				},
				BuildKwargs:           o.cfg.BuildKwargs,
				Release:               release,
				IsAuto:                o.cfg.IsAuto,
				FilesystemKojiTaskID:  fsTaskID,
				KojiUploadDir:         o.kojiUploadDir,
				FindClusterRetryDelay: o.cfg.FindClusterRetryDelay,
				FailureRetryDelay:     o.cfg.FailureRetryDelay,
				MaxClusterFails:       o.cfg.MaxClusterFails,
				Clock:                 o.cfg.Clock,
				Logger:                o.cfg.Logger,
			}, o.workspace)
			_, err := d.SelectAndStartCluster(gctx, platform)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		o.cancelOutstanding()
		return nil, err
	}

	return o.aggregate(platforms), nil
}

func (o *Orchestrator) filesystemKojiTaskID() (*int64, error) {
	raw, present, err := o.cfg.PriorResults.FilesystemKojiTaskID()
	if err != nil || !present {
		return nil, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (o *Orchestrator) resolvePlatforms() ([]string, error) {
	requested := make(map[string]struct{}, len(o.cfg.Platforms))
	for _, p := range o.cfg.Platforms {
		requested[p] = struct{}{}
	}

	var filter *manifest.PlatformFilter
	if o.cfg.ManifestPath != "" {
		f, err := manifest.Load(o.cfg.ManifestPath)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	resolved := manifest.Apply(filter, requested)
	platforms := make([]string, 0, len(resolved))
	for p := range resolved {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	return platforms, nil
}

// cancelOutstanding best-effort cancels every build recorded so far, once
// a dispatcher elsewhere has already failed hard. Done in parallel since
// cluster cancellation calls are independent remote requests.
func (o *Orchestrator) cancelOutstanding() {
	builds := o.workspace.All()

	var cg errgroup.Group
	for _, info := range builds {
		info := info
		cg.Go(func() error {
			if err := info.CancelBuild(context.Background()); err != nil {
				o.cfg.Logger.V(2).Infof("%s - best-effort cancel of %s failed: %v", info.Platform, info.Name(), err)
			}
			return nil
		})
	}
	_ = cg.Wait()
}

// aggregate composes per-platform annotations keyed by platform, the
// union of unique/primary repositories, a koji-build-id label only when
// every platform agrees, and a JSON fail reason for any platform that
// didn't succeed.
func (o *Orchestrator) aggregate(platforms []string) *BuildResult {
	builds := o.workspace.All()

	workerBuilds := map[string]interface{}{}
	var unique, primary []string
	kojiBuildIDs := map[string]struct{}{}
	failReasons := map[string]interface{}{}

	for _, platform := range platforms {
		info, ok := builds[platform]
		if !ok {
			continue
		}

		if info.Build != nil {
			workerBuilds[platform] = info.GetAnnotations()
			u, p := info.Build.Repositories()
			unique = append(unique, u...)
			primary = append(primary, p...)
			if id, ok := info.Build.KojiBuildID(); ok {
				kojiBuildIDs[id] = struct{}{}
			}
		}

		if info.Build == nil || !info.Build.IsSucceeded() {
			failReasons[platform] = info.GetFailReason()
		}
	}

	annotations := map[string]interface{}{"worker-builds": workerBuilds}
	uniqueSorted := sortedUnique(unique)
	primarySorted := sortedUnique(primary)
	if len(uniqueSorted) > 0 || len(primarySorted) > 0 {
		annotations["repositories"] = map[string]interface{}{
			"unique":  uniqueSorted,
			"primary": primarySorted,
		}
	}

	labels := map[string]string{}
	switch len(kojiBuildIDs) {
	case 0:
	case 1:
		for id := range kojiBuildIDs {
			labels["koji-build-id"] = id
		}
	default:
		// Disagreeing worker builds: omit the label rather than picking
		// one arbitrarily, but log it.
		ids := make([]string, 0, len(kojiBuildIDs))
		for id := range kojiBuildIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		o.cfg.Logger.Warningf("worker builds reported disagreeing koji build IDs %v, omitting koji-build-id label", ids)
	}

	result := &BuildResult{Annotations: annotations, Labels: labels}
	if len(failReasons) > 0 {
		if raw, err := json.Marshal(failReasons); err == nil {
			s := string(raw)
			result.FailReason = &s
		}
	}
	return result
}

func sortedUnique(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
