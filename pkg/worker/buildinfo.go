// Package worker owns a single attempted worker build on one cluster:
// its remote handle, log streaming, completion wait, and the annotations
// and failure reason derived from it.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openshift/build-orchestrator/pkg/cluster"
	"github.com/openshift/build-orchestrator/pkg/log"
)

// BuildInfo is the per-(platform, cluster-attempt) handle. Exactly one is
// produced per platform, regardless of how many clusters were tried.
type BuildInfo struct {
	Platform string
	Cluster  cluster.Cluster
	Client   cluster.Client
	Build    cluster.Build // nil until/unless a remote build was created

	// MonitorErr captures any error from watching or waiting on the
	// build; it is never propagated to the caller, only recorded.
	MonitorErr error
}

// Name returns the remote build's name, or "N/A" if none was created.
func (b *BuildInfo) Name() string {
	if b.Build == nil {
		return "N/A"
	}
	return b.Build.Name()
}

// WatchLogs streams the build's combined log output line by line to
// logger, tagged with the platform, returning when the stream ends.
func (b *BuildInfo) WatchLogs(ctx context.Context, logger log.Logger) error {
	if b.Build == nil {
		return nil
	}
	r, err := b.Client.StreamLogs(ctx, b.Name())
	if err != nil {
		return err
	}
	defer r.Close()

	tagged := log.WithPlatform(logger, b.Platform)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tagged.Info(scanner.Text())
	}
	return scanner.Err()
}

// WaitToFinish blocks until the remote build reaches a terminal state and
// updates Build to the final handle.
func (b *BuildInfo) WaitToFinish(ctx context.Context) error {
	if b.Build == nil {
		return nil
	}
	final, err := b.Client.WaitForBuildToFinish(ctx, b.Name())
	if err != nil {
		return err
	}
	b.Build = final
	return nil
}

// CancelBuild requests cancellation of the build if one exists and has
// not already finished. Cancellation failures are the caller's problem to
// log and ignore; this is best-effort only.
func (b *BuildInfo) CancelBuild(ctx context.Context) error {
	if b.Build == nil || b.Build.IsFinished() {
		return nil
	}
	return b.Client.CancelBuild(ctx, b.Name())
}

// GetAnnotations composes the build/digests/plugins-metadata annotation
// shape for the final result.
func (b *BuildInfo) GetAnnotations() map[string]interface{} {
	annotations := map[string]interface{}{
		"build": map[string]string{
			"cluster-url": b.Client.BaseURI(),
			"namespace":   b.Client.Namespace(),
			"build-name":  b.Name(),
		},
		"digests":          decodeJSONOrDefault(b.rawAnnotations()["digests"], []interface{}{}),
		"plugins-metadata": decodeJSONOrDefault(b.rawAnnotations()["plugins-metadata"], map[string]interface{}{}),
	}

	raw := b.rawAnnotations()
	fragment, hasFragment := raw["metadata_fragment"]
	key, hasKey := raw["metadata_fragment_key"]
	if hasFragment && hasKey {
		annotations["metadata_fragment"] = fragment
		annotations["metadata_fragment_key"] = key
	}

	return annotations
}

// GetFailReason composes a fail reason in priority order: a general
// reason (monitor exception, or "build not started"), then any
// plugins-metadata errors, then a best-effort pod failure reason.
func (b *BuildInfo) GetFailReason() map[string]interface{} {
	reason := map[string]interface{}{}

	switch {
	case b.MonitorErr != nil:
		reason["general"] = fmt.Sprintf("%#v", b.MonitorErr)
	case b.Build == nil:
		reason["general"] = "build not started"
	}

	if b.Build == nil {
		return reason
	}

	metadata, _ := decodeJSONOrDefault(b.rawAnnotations()["plugins-metadata"], map[string]interface{}{}).(map[string]interface{})
	if errs, ok := metadata["errors"].(map[string]interface{}); ok {
		for k, v := range errs {
			reason[k] = v
		}
		return reason
	}

	if podReason, err := b.Client.PodFailureReason(context.Background(), b.Name()); err == nil {
		reason["pod"] = podReason
	}
	// Any lookup error, including the client not supporting pod lookups
	// at all, is silently omitted.

	return reason
}

func (b *BuildInfo) rawAnnotations() map[string]string {
	if b.Build == nil {
		return nil
	}
	a := b.Build.Annotations()
	if a == nil {
		return map[string]string{}
	}
	return a
}

func decodeJSONOrDefault(raw string, def interface{}) interface{} {
	if raw == "" {
		return def
	}
	var out interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return def
	}
	return out
}
