// Package recipe models the two small out-of-scope collaborators the
// orchestrator reads from before dispatching: the build recipe's release
// label, and any filesystem-koji-task-id left behind by an earlier
// pipeline step. Labels are read off the recipe rather than trusted from
// caller-supplied flags.
package recipe

import (
	"fmt"
	"strconv"

	orcherrors "github.com/openshift/build-orchestrator/pkg/errors"
)

// ReleaseLabelReader reads the "release" label from the build recipe
// (e.g. a Dockerfile LABEL instruction). Out of scope for this module;
// only this read-only surface is depended on.
type ReleaseLabelReader interface {
	ReleaseLabel() (string, error)
}

// StaticRelease is a ReleaseLabelReader that always returns a fixed
// value, useful for tests and for callers who already resolved the label
// upstream.
type StaticRelease string

// ReleaseLabel implements ReleaseLabelReader.
func (r StaticRelease) ReleaseLabel() (string, error) {
	return string(r), nil
}

// LabelMapReader extracts "release" from a flat label map, the way
// GenerateConfigFromLabels pulls well-known keys out of image labels.
type LabelMapReader map[string]string

// ReleaseLabel implements ReleaseLabelReader.
func (l LabelMapReader) ReleaseLabel() (string, error) {
	return l["release"], nil
}

// PriorResults exposes results an earlier pipeline step may have left
// behind, namely an add-filesystem task id to forward to worker builds.
type PriorResults interface {
	// FilesystemKojiTaskID returns the task id and true if an earlier
	// step ran and produced one, or ("", false, nil) if the step never
	// ran at all.
	FilesystemKojiTaskID() (value string, present bool, err error)
}

// NoPriorResults is a PriorResults that never reports a prior task id.
type NoPriorResults struct{}

// FilesystemKojiTaskID implements PriorResults.
func (NoPriorResults) FilesystemKojiTaskID() (string, bool, error) { return "", false, nil }

// MapPriorResults reads filesystem-koji-task-id out of a flat result map
// an earlier pipeline step may have populated.
type MapPriorResults map[string]interface{}

// FilesystemKojiTaskID implements PriorResults. A present-but-malformed
// value is a fatal error rather than being silently dropped.
func (m MapPriorResults) FilesystemKojiTaskID() (string, bool, error) {
	raw, ok := m["filesystem-koji-task-id"]
	if !ok {
		return "", false, nil
	}
	switch v := raw.(type) {
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	case int:
		return strconv.Itoa(v), true, nil
	case string:
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return "", false, orcherrors.NewMalformedBuildDescriptorError(
				fmt.Sprintf("filesystem-koji-task-id returned an invalid task ID: %v", raw))
		}
		return v, true, nil
	default:
		return "", false, orcherrors.NewMalformedBuildDescriptorError(
			fmt.Sprintf("filesystem-koji-task-id returned an invalid task ID: %v", raw))
	}
}
