// Package workspace is the run-scoped registry that lets peer
// pipeline stages mutate per-worker build arguments before the
// orchestrator runs, and read back per-platform build handles and the
// koji upload directory after it finishes.
package workspace

import (
	"sync"

	"github.com/openshift/build-orchestrator/pkg/worker"
)

// Workspace is created by New, one per Orchestrator, and is safe for
// concurrent use by the platform dispatchers that populate BuildInfo.
type Workspace struct {
	mu             sync.Mutex
	kojiUploadDir  string
	buildInfo      map[string]*worker.BuildInfo
	overrideKwargs map[string]interface{}
}

// New returns an empty Workspace.
func New() *Workspace {
	return &Workspace{
		buildInfo:      map[string]*worker.BuildInfo{},
		overrideKwargs: map[string]interface{}{},
	}
}

// OverrideBuildKwarg sets a key in the override-kwargs slot, creating it
// lazily. Overrides are applied on top of the computed per-worker kwargs
// by the dispatcher, so they win. Writes after the orchestrator has
// started are not supported.
func (w *Workspace) OverrideBuildKwarg(k string, v interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.overrideKwargs == nil {
		w.overrideKwargs = map[string]interface{}{}
	}
	w.overrideKwargs[k] = v
}

// OverrideKwargs returns a snapshot of the current overrides.
func (w *Workspace) OverrideKwargs() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := make(map[string]interface{}, len(w.overrideKwargs))
	for k, v := range w.overrideKwargs {
		snapshot[k] = v
	}
	return snapshot
}

// SetBuildInfo records the terminal BuildInfo for a platform. Appends are
// serialized through the workspace mutex since platforms publish
// concurrently.
func (w *Workspace) SetBuildInfo(platform string, info *worker.BuildInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buildInfo[platform] = info
}

// GetWorkerBuildInfo is a post-run accessor for downstream pipeline
// stages.
func (w *Workspace) GetWorkerBuildInfo(platform string) (*worker.BuildInfo, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, ok := w.buildInfo[platform]
	return info, ok
}

// SetKojiUploadDir publishes the run's upload directory, minted once
// during Orchestrator construction.
func (w *Workspace) SetKojiUploadDir(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.kojiUploadDir = dir
}

// GetKojiUploadDir is a post-run accessor for downstream pipeline stages.
func (w *Workspace) GetKojiUploadDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kojiUploadDir
}

// All returns a snapshot of every published BuildInfo, keyed by platform,
// for the orchestrator's final aggregation pass.
func (w *Workspace) All() map[string]*worker.BuildInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := make(map[string]*worker.BuildInfo, len(w.buildInfo))
	for k, v := range w.buildInfo {
		snapshot[k] = v
	}
	return snapshot
}
