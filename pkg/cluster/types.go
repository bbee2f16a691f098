// Package cluster selects, ranks, and tracks the health of worker clusters
// for a single platform's build dispatch.
package cluster

import (
	"context"
	"io"
)

// Cluster is a remote environment that can run a worker build, as returned
// by the configuration provider. Lower Priority is preferred.
type Cluster struct {
	Name                string
	Priority            int
	MaxConcurrentBuilds int
}

// Client is the method surface the orchestrator depends on for a single
// cluster. The concrete implementation (e.g. a Kubernetes/OpenShift Build
// API client) lives outside this module; this interface is the seam.
type Client interface {
	// ActiveBuildCount returns the number of builds on this cluster that
	// have not reached a terminal state. The selector calls it with a
	// WithRetriesDisabled context so that the client's own retry wrapper
	// is skipped (the orchestrator owns retry policy, not the client).
	ActiveBuildCount(ctx context.Context) (int, error)

	// CreateWorkerBuild starts a new build with the given per-worker
	// keyword arguments and returns a handle to it.
	CreateWorkerBuild(ctx context.Context, kwargs map[string]interface{}) (Build, error)

	// BaseURI and Namespace identify where a build handle's name resolves
	// to, for annotation purposes.
	BaseURI() string
	Namespace() string

	// StreamLogs returns a reader of the build's combined log stream; the
	// caller drains it line by line and closes it when done.
	StreamLogs(ctx context.Context, buildName string) (io.ReadCloser, error)

	// WaitForBuildToFinish blocks until the named build reaches a
	// terminal state and returns its final handle.
	WaitForBuildToFinish(ctx context.Context, buildName string) (Build, error)

	// CancelBuild requests cancellation of the named build.
	CancelBuild(ctx context.Context, buildName string) error

	// PodFailureReason returns a human-readable reason the build's pod
	// failed. Absence of this capability, or any lookup error, should be
	// surfaced as an error so the caller can omit it silently.
	PodFailureReason(ctx context.Context, buildName string) (string, error)
}

// Build is a handle to a single remote build.
type Build interface {
	Name() string
	IsFinished() bool
	IsSucceeded() bool
	// Annotations returns the raw annotation strings on the build object,
	// including the JSON-encoded "digests" and "plugins-metadata" values
	// and, when present, "metadata_fragment"/"metadata_fragment_key".
	Annotations() map[string]string
	Repositories() (unique, primary []string)
	KojiBuildID() (string, bool)
}

// Info is the fully-resolved record the selector hands back for one
// candidate: the cluster, the platform it was probed for, a live client,
// and its current load.
type Info struct {
	Cluster  Cluster
	Platform string
	Client   Client
	Load     float64
}

// ConfigProvider returns the enabled clusters for a platform. The
// concrete source (a config map, a CRD, a flat file) is out of scope for
// this module; only this read-only surface is depended on.
type ConfigProvider interface {
	EnabledClustersFor(platform string) ([]Cluster, error)
}

// TransientError is implemented by client errors that should be retried
// against an alternate cluster rather than treated as fatal.
type TransientError interface {
	error
	IsTransient() bool
}
