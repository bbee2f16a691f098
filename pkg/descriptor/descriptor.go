// Package descriptor reads the ambient OpenShift build descriptor (the
// JSON the build pod's BUILD environment variable carries) and extracts
// the builder image worker builds must inherit.
package descriptor

import (
	"encoding/json"
	"os"

	orcherrors "github.com/openshift/build-orchestrator/pkg/errors"
)

// EnvVar is the environment variable name the build descriptor is read
// from, matching OpenShift's own custom-strategy build convention.
const EnvVar = "BUILD"

type buildDescriptor struct {
	Spec struct {
		Strategy struct {
			CustomStrategy struct {
				From struct {
					Kind string `json:"kind"`
					Name string `json:"name"`
				} `json:"from"`
			} `json:"customStrategy"`
		} `json:"strategy"`
	} `json:"spec"`
}

// BuildImage reads the descriptor from the named environment variable and
// extracts spec.strategy.customStrategy.from.name, requiring
// spec.strategy.customStrategy.from.kind == "DockerImage". Any missing
// field or wrong kind is fatal.
func BuildImage(envVar string) (string, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return "", orcherrors.NewMalformedBuildDescriptorError("missing " + envVar + " environment variable")
	}
	return ParseBuildImage([]byte(raw))
}

// ParseBuildImage extracts the builder image from raw descriptor JSON.
func ParseBuildImage(raw []byte) (string, error) {
	var d buildDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", orcherrors.NewMalformedBuildDescriptorError("invalid build descriptor JSON: " + err.Error())
	}

	from := d.Spec.Strategy.CustomStrategy.From
	if from.Kind == "" || from.Name == "" {
		return "", orcherrors.NewMalformedBuildDescriptorError("missing spec.strategy.customStrategy.from")
	}
	if from.Kind != "DockerImage" {
		return "", orcherrors.NewMalformedBuildDescriptorError("build kind isn't DockerImage but " + from.Kind)
	}
	return from.Name, nil
}
