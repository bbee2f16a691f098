// Package openshift is the reference cluster.Client implementation: a
// Kubernetes/OpenShift-style Build API client built on plain structs and
// net/http.
package openshift

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/openshift/build-orchestrator/pkg/cluster"
	"github.com/openshift/build-orchestrator/pkg/clusterconfig"
	"github.com/openshift/build-orchestrator/pkg/log"
	"github.com/openshift/build-orchestrator/pkg/orchestrate"
)

// Config is one cluster's connection template, including the
// conf_section/conf_file pair threaded through from the reference
// clusterconfig.Provider.
type Config struct {
	BaseURI     string
	Namespace   string
	ConfSection string
	ConfFile    string

	HTTPClient *http.Client
	Logger     log.Logger
}

// Client implements cluster.Client against a Build-API-shaped HTTP
// endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     log.Logger
}

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURI == "" {
		return nil, fmt.Errorf("openshift cluster client: base URI is required")
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("openshift cluster client: namespace is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.None
	}
	logger.V(2).Infof("openshift client for %s/%s using conf_section=%q conf_file=%q",
		cfg.BaseURI, cfg.Namespace, cfg.ConfSection, cfg.ConfFile)
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

// NewClientFactory adapts a clusterconfig.Provider into an
// orchestrate.ClientFactory, resolving each cluster's connection template
// by name at dispatch time. A non-empty osbsConfigDir points every client
// at <osbsConfigDir>/osbs.conf instead of the per-cluster conf_file.
func NewClientFactory(clusters *clusterconfig.Provider, osbsConfigDir string, logger log.Logger) orchestrate.ClientFactory {
	return func(ctx context.Context, c cluster.Cluster, platform, buildImage string) (cluster.Client, error) {
		cc, ok := clusters.ClientConfigFor(c.Name)
		if !ok {
			return nil, fmt.Errorf("openshift cluster client: no connection config for cluster %q", c.Name)
		}
		confFile := cc.ConfFile
		if osbsConfigDir != "" {
			confFile = filepath.Join(osbsConfigDir, "osbs.conf")
		}
		return NewClient(Config{
			BaseURI:     cc.BaseURI,
			Namespace:   cc.Namespace,
			ConfSection: cc.ConfSection,
			ConfFile:    confFile,
			Logger:      logger,
		})
	}
}

func (c *Client) BaseURI() string   { return c.cfg.BaseURI }
func (c *Client) Namespace() string { return c.cfg.Namespace }

// ActiveBuildCount lists builds in the cluster's namespace and counts the
// ones that have not reached a terminal phase.
func (c *Client) ActiveBuildCount(ctx context.Context) (int, error) {
	var list struct {
		Items []buildObject `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, c.buildsURL(""), nil, &list); err != nil {
		return 0, err
	}
	active := 0
	for _, b := range list.Items {
		if !isFinishedPhase(b.Status.Phase) {
			active++
		}
	}
	return active, nil
}

// CreateWorkerBuild creates a new Build object from kwargs and returns a
// handle to it.
func (c *Client) CreateWorkerBuild(ctx context.Context, kwargs map[string]interface{}) (cluster.Build, error) {
	var obj buildObject
	if err := c.do(ctx, http.MethodPost, c.buildsURL(""), kwargs, &obj); err != nil {
		return nil, err
	}
	return &build{obj: obj}, nil
}

// StreamLogs opens the build's combined log stream.
func (c *Client) StreamLogs(ctx context.Context, buildName string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildsURL(buildName)+"/log", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err, 0)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, classify(fmt.Errorf("stream logs for %s: unexpected status %d", buildName, resp.StatusCode), resp.StatusCode)
	}
	return resp.Body, nil
}

// WaitForBuildToFinish polls the build until it reaches a terminal phase.
func (c *Client) WaitForBuildToFinish(ctx context.Context, buildName string) (cluster.Build, error) {
	for {
		var obj buildObject
		if err := c.do(ctx, http.MethodGet, c.buildsURL(buildName), nil, &obj); err != nil {
			return nil, err
		}
		if isFinishedPhase(obj.Status.Phase) {
			return &build{obj: obj}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// CancelBuild requests cancellation of the named build.
func (c *Client) CancelBuild(ctx context.Context, buildName string) error {
	patch := map[string]interface{}{
		"status": map[string]interface{}{"cancelled": true},
	}
	return c.do(ctx, http.MethodPatch, c.buildsURL(buildName), patch, nil)
}

// PodFailureReason returns the build status's reason field, if the cluster
// recorded one.
func (c *Client) PodFailureReason(ctx context.Context, buildName string) (string, error) {
	var obj buildObject
	if err := c.do(ctx, http.MethodGet, c.buildsURL(buildName), nil, &obj); err != nil {
		return "", err
	}
	if obj.Status.Reason == "" {
		return "", fmt.Errorf("no pod failure reason recorded for %s", buildName)
	}
	return obj.Status.Reason, nil
}

func (c *Client) buildsURL(name string) string {
	url := fmt.Sprintf("%s/namespaces/%s/builds", c.cfg.BaseURI, c.cfg.Namespace)
	if name != "" {
		url += "/" + name
	}
	return url
}

// do performs one JSON request, retrying transient failures up to twice
// unless the caller scoped ctx with cluster.WithRetriesDisabled: the
// orchestrator owns retry policy for the calls it itself retries
// (create/list), so the client's own wrapper steps aside.
func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	attempts := 1
	if !cluster.RetriesDisabled(ctx) {
		attempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
		lastErr = c.doOnce(ctx, method, url, body, out)
		if lastErr == nil {
			return nil
		}
		var te cluster.TransientError
		if ok := asTransient(lastErr, &te); !ok || !te.IsTransient() {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classify(fmt.Errorf("%s %s: unexpected status %d", method, url, resp.StatusCode), resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func asTransient(err error, target *cluster.TransientError) bool {
	for err != nil {
		if te, ok := err.(cluster.TransientError); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// classify wraps err so dispatch.isTransient can tell a retryable cluster
// hiccup (5xx, network failure) from a permanent one (4xx).
func classify(err error, statusCode int) error {
	if statusCode >= 400 && statusCode < 500 {
		return &clientError{err: err, transient: false}
	}
	return &clientError{err: err, transient: true}
}

type clientError struct {
	err       error
	transient bool
}

func (e *clientError) Error() string     { return e.err.Error() }
func (e *clientError) Unwrap() error     { return e.err }
func (e *clientError) IsTransient() bool { return e.transient }

type buildObject struct {
	Metadata struct {
		Name        string            `json:"name"`
		Annotations map[string]string `json:"annotations"`
	} `json:"metadata"`
	Status struct {
		Phase  string `json:"phase"`
		Reason string `json:"reason"`
	} `json:"status"`
}

type build struct {
	obj buildObject
}

func (b *build) Name() string                   { return b.obj.Metadata.Name }
func (b *build) IsFinished() bool                { return isFinishedPhase(b.obj.Status.Phase) }
func (b *build) IsSucceeded() bool               { return b.obj.Status.Phase == "Complete" }
func (b *build) Annotations() map[string]string  { return b.obj.Metadata.Annotations }

func (b *build) Repositories() (unique, primary []string) {
	raw := b.obj.Metadata.Annotations["repositories"]
	if raw == "" {
		return nil, nil
	}
	var parsed struct {
		Unique  []string `json:"unique"`
		Primary []string `json:"primary"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, nil
	}
	return parsed.Unique, parsed.Primary
}

func (b *build) KojiBuildID() (string, bool) {
	id, ok := b.obj.Metadata.Annotations["koji-build-id"]
	return id, ok && id != ""
}

func isFinishedPhase(phase string) bool {
	switch phase {
	case "Complete", "Failed", "Error", "Cancelled":
		return true
	}
	return false
}
