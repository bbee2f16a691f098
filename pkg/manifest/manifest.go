// Package manifest parses the optional in-repo container.yaml file that
// restricts which platforms a build targets.
package manifest

import (
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"

	orcherrors "github.com/openshift/build-orchestrator/pkg/errors"
)

// PlatformFilter is the "platforms" stanza of container.yaml.
type PlatformFilter struct {
	Only []string `yaml:"only"`
	Not  []string `yaml:"not"`
}

type containerYAML struct {
	Platforms *rawPlatforms `yaml:"platforms"`
}

// rawPlatforms tolerates "only"/"not" being either a scalar string or a
// list of strings.
type rawPlatforms struct {
	Only scalarOrList `yaml:"only"`
	Not  scalarOrList `yaml:"not"`
}

type scalarOrList []string

// UnmarshalYAML accepts either a bare scalar or a sequence.
func (s *scalarOrList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var list []string
	if err := unmarshal(&list); err == nil {
		*s = list
		return nil
	}
	var single string
	if err := unmarshal(&single); err != nil {
		return err
	}
	if single == "" {
		*s = nil
		return nil
	}
	*s = []string{single}
	return nil
}

// Load reads and parses the container.yaml at path. A missing file is not
// an error: it returns a nil *PlatformFilter, meaning "no restriction".
func Load(path string) (*PlatformFilter, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, orcherrors.NewManifestUnreadableError(path, err)
	}

	var doc containerYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, orcherrors.NewManifestUnreadableError(path, err)
	}
	if doc.Platforms == nil {
		return nil, nil
	}
	return &PlatformFilter{Only: []string(doc.Platforms.Only), Not: []string(doc.Platforms.Not)}, nil
}

// Apply intersects requested with Only (if non-empty) and subtracts Not.
// A nil filter returns requested unchanged.
func Apply(filter *PlatformFilter, requested map[string]struct{}) map[string]struct{} {
	if filter == nil {
		return requested
	}

	result := make(map[string]struct{}, len(requested))
	for p := range requested {
		result[p] = struct{}{}
	}

	if len(filter.Only) > 0 {
		only := toSet(filter.Only)
		for p := range result {
			if _, ok := only[p]; !ok {
				delete(result, p)
			}
		}
	}

	for _, p := range filter.Not {
		delete(result, p)
	}

	return result
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}
