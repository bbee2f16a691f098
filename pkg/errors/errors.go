// Package errors defines the error taxonomy for the build orchestrator.
package errors

import "fmt"

// Error codes for orchestrator-level failures.
const (
	ErrUnknownPlatform int = 1 + iota
	ErrAllClustersFailed
	ErrMalformedBuildDescriptor
	ErrManifestUnreadable
	ErrMonitorFailure
	ErrClusterRejected
)

// Error represents an error thrown during orchestration.
type Error struct {
	Message    string
	Details    error
	ErrorCode  int
	Suggestion string
	transient  bool
}

// Error returns a string for a given error.
func (e Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Details)
	}
	return e.Message
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Details
}

// IsTransient reports whether the failure is expected to be resolved by
// retrying on an alternate cluster, as opposed to one that retrying
// elsewhere will not resolve.
func (e Error) IsTransient() bool {
	return e.transient
}

// NewUnknownPlatformError returns an error indicating no clusters are
// configured for the requested platform.
func NewUnknownPlatformError(platform string) error {
	return Error{
		Message:    fmt.Sprintf("no clusters found for platform %q", platform),
		ErrorCode:  ErrUnknownPlatform,
		Suggestion: "check the cluster configuration for this platform",
	}
}

// NewAllClustersFailedError returns an error indicating every cluster
// candidate for a platform has reached its failure limit.
func NewAllClustersFailedError(platform string) error {
	return Error{
		Message:    fmt.Sprintf("could not find an appropriate cluster for platform %q", platform),
		ErrorCode:  ErrAllClustersFailed,
		Suggestion: "check cluster health and connectivity for this platform",
	}
}

// NewClusterError wraps a failure from a cluster client call. transient
// controls whether the dispatcher should rotate to the next candidate
// cluster (true) or treat the failure as fatal to that platform (false).
func NewClusterError(cluster string, err error, transient bool) error {
	return Error{
		Message:    fmt.Sprintf("cluster %q rejected the request", cluster),
		Details:    err,
		ErrorCode:  ErrClusterRejected,
		Suggestion: "inspect the cluster client logs for the underlying cause",
		transient:  transient,
	}
}

// NewMalformedBuildDescriptorError returns a fatal error for a build
// descriptor missing required fields or carrying the wrong strategy kind.
func NewMalformedBuildDescriptorError(reason string) error {
	return Error{
		Message:    fmt.Sprintf("build descriptor is malformed: %s", reason),
		ErrorCode:  ErrMalformedBuildDescriptor,
		Suggestion: "verify spec.strategy.customStrategy.from.kind is DockerImage",
	}
}

// NewManifestUnreadableError wraps a container.yaml parse failure.
func NewManifestUnreadableError(path string, err error) error {
	return Error{
		Message:    fmt.Sprintf("unable to read manifest %s", path),
		Details:    err,
		ErrorCode:  ErrManifestUnreadable,
		Suggestion: "check the manifest YAML for syntax errors",
	}
}

// NewMonitorFailureError wraps a failure from watching or waiting on a
// worker build after it was successfully created.
func NewMonitorFailureError(platform string, err error) error {
	return Error{
		Message:    fmt.Sprintf("failed to monitor worker build for platform %q", platform),
		Details:    err,
		ErrorCode:  ErrMonitorFailure,
		Suggestion: "check the worker build's own logs on its cluster",
	}
}
