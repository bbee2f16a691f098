// Package clusterconfig is the reference YAML-backed
// cluster.ConfigProvider: a static clusters.yaml document mapping each
// platform to its ordered cluster list and per-cluster connection
// template.
package clusterconfig

import (
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/openshift/build-orchestrator/pkg/cluster"
	orcherrors "github.com/openshift/build-orchestrator/pkg/errors"
)

// ClientConfig is the per-cluster connection template the reference
// openshift cluster client factory consumes: a base URI/namespace plus a
// conf_section/conf_file pair identifying which section of which local
// config file holds any additional credentials for this cluster.
type ClientConfig struct {
	BaseURI     string
	Namespace   string
	ConfSection string
	ConfFile    string
}

type clusterEntry struct {
	Name                 string `yaml:"name"`
	Priority             int    `yaml:"priority"`
	MaxConcurrentBuilds  int    `yaml:"max_concurrent_builds"`
	Enabled              *bool  `yaml:"enabled"`
	BaseURI              string `yaml:"base_uri"`
	Namespace            string `yaml:"namespace"`
	ConfSection          string `yaml:"conf_section"`
	ConfFile             string `yaml:"conf_file"`
}

type document struct {
	Platforms map[string][]clusterEntry `yaml:"platforms"`
}

// Provider is a cluster.ConfigProvider backed by a static YAML document.
type Provider struct {
	platforms map[string][]cluster.Cluster
	clients   map[string]ClientConfig
}

// Load reads a clusters.yaml document from path.
func Load(path string) (*Provider, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, orcherrors.NewManifestUnreadableError(path, err)
	}
	return Parse(data)
}

// Parse builds a Provider from raw YAML, split out from Load for tests.
func Parse(data []byte) (*Provider, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, orcherrors.NewManifestUnreadableError("cluster config", err)
	}

	p := &Provider{
		platforms: make(map[string][]cluster.Cluster, len(doc.Platforms)),
		clients:   make(map[string]ClientConfig),
	}
	for platform, entries := range doc.Platforms {
		var clusters []cluster.Cluster
		for _, e := range entries {
			if e.Enabled != nil && !*e.Enabled {
				continue
			}
			clusters = append(clusters, cluster.Cluster{
				Name:                e.Name,
				Priority:            e.Priority,
				MaxConcurrentBuilds: e.MaxConcurrentBuilds,
			})
			p.clients[e.Name] = ClientConfig{
				BaseURI:     e.BaseURI,
				Namespace:   e.Namespace,
				ConfSection: e.ConfSection,
				ConfFile:    e.ConfFile,
			}
		}
		p.platforms[platform] = clusters
	}
	return p, nil
}

// EnabledClustersFor implements cluster.ConfigProvider.
func (p *Provider) EnabledClustersFor(platform string) ([]cluster.Cluster, error) {
	return p.platforms[platform], nil
}

// ClientConfigFor returns the named cluster's connection template.
func (p *Provider) ClientConfigFor(name string) (ClientConfig, bool) {
	c, ok := p.clients[name]
	return c, ok
}
