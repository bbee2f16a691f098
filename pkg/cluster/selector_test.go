package cluster

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/openshift/build-orchestrator/pkg/log"
)

// fakeClient is a minimal cluster.Client whose only behavior the selector
// exercises is ActiveBuildCount.
type fakeClient struct {
	name        string
	activeCount int
	probeErr    error
}

func (f *fakeClient) ActiveBuildCount(ctx context.Context) (int, error) { return f.activeCount, f.probeErr }
func (f *fakeClient) CreateWorkerBuild(ctx context.Context, kwargs map[string]interface{}) (Build, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) BaseURI() string   { return "https://" + f.name }
func (f *fakeClient) Namespace() string { return "builds" }
func (f *fakeClient) StreamLogs(ctx context.Context, buildName string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) WaitForBuildToFinish(ctx context.Context, buildName string) (Build, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeClient) CancelBuild(ctx context.Context, buildName string) error { return nil }
func (f *fakeClient) PodFailureReason(ctx context.Context, buildName string) (string, error) {
	return "", errors.New("not implemented")
}

func newFixedClients(t *testing.T, byName map[string]*fakeClient) ClientFactory {
	t.Helper()
	return func(ctx context.Context, c Cluster, platform string) (Client, error) {
		fc, ok := byName[c.Name]
		if !ok {
			return nil, errors.New("no client configured for cluster " + c.Name)
		}
		return fc, nil
	}
}

// recordingClient captures whether the context it was called with had
// retries disabled, for TestProbeDisablesClientRetries.
type recordingClient struct {
	fakeClient
	activeBuildCountSawRetriesDisabled *bool
}

func (r *recordingClient) ActiveBuildCount(ctx context.Context) (int, error) {
	*r.activeBuildCountSawRetriesDisabled = RetriesDisabled(ctx)
	return r.fakeClient.activeCount, r.fakeClient.probeErr
}

func TestProbeDisablesClientRetries(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	sawRetriesDisabled := false
	var newClientCtx context.Context
	client := &recordingClient{fakeClient: fakeClient{name: "only"}, activeBuildCountSawRetriesDisabled: &sawRetriesDisabled}

	all := []Cluster{{Name: "only", Priority: 1, MaxConcurrentBuilds: 5}}
	retryContexts := map[string]*RetryContext{"only": NewRetryContextWithClock(5, clk)}

	s := &Selector{
		Clock:  clk,
		Logger: log.None,
		NewClient: func(ctx context.Context, c Cluster, platform string) (Client, error) {
			newClientCtx = ctx
			return client, nil
		},
		FindRetryWait: time.Second,
	}
	if _, err := s.GetClusters(context.Background(), "x86_64", retryContexts, all); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !RetriesDisabled(newClientCtx) {
		t.Fatal("expected NewClient to be called with a retries-disabled context")
	}
	if !sawRetriesDisabled {
		t.Fatal("expected ActiveBuildCount to be called with a retries-disabled context")
	}
}

func TestSelectorOrdersByPriorityThenLoad(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	clients := map[string]*fakeClient{
		"low-priority-idle":  {name: "low-priority-idle", activeCount: 0},
		"high-priority-busy": {name: "high-priority-busy", activeCount: 4},
	}
	all := []Cluster{
		{Name: "low-priority-idle", Priority: 2, MaxConcurrentBuilds: 5},
		{Name: "high-priority-busy", Priority: 1, MaxConcurrentBuilds: 5},
	}
	retryContexts := map[string]*RetryContext{
		"low-priority-idle":  NewRetryContextWithClock(1, clk),
		"high-priority-busy": NewRetryContextWithClock(1, clk),
	}

	s := &Selector{Clock: clk, Logger: log.None, NewClient: newFixedClients(t, clients), FindRetryWait: time.Second}
	got, err := s.GetClusters(context.Background(), "x86_64", retryContexts, all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	// Priority is the primary key regardless of load.
	if got[0].Cluster.Name != "high-priority-busy" {
		t.Fatalf("expected high-priority-busy first, got %s", got[0].Cluster.Name)
	}
	if got[1].Cluster.Name != "low-priority-idle" {
		t.Fatalf("expected low-priority-idle second, got %s", got[1].Cluster.Name)
	}
}

func TestSelectorSkipsDeadAndCoolingDownClusters(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	clients := map[string]*fakeClient{
		"dead":    {name: "dead", activeCount: 0},
		"cooling": {name: "cooling", activeCount: 0},
		"healthy": {name: "healthy", activeCount: 1},
	}
	all := []Cluster{
		{Name: "dead", Priority: 1, MaxConcurrentBuilds: 5},
		{Name: "cooling", Priority: 1, MaxConcurrentBuilds: 5},
		{Name: "healthy", Priority: 1, MaxConcurrentBuilds: 5},
	}
	retryContexts := map[string]*RetryContext{
		"dead":    NewRetryContextWithClock(1, clk),
		"cooling": NewRetryContextWithClock(5, clk),
		"healthy": NewRetryContextWithClock(5, clk),
	}
	retryContexts["dead"].TryAgainLater(time.Minute) // maxFails=1, so this kills it
	retryContexts["cooling"].TryAgainLater(time.Minute)

	s := &Selector{Clock: clk, Logger: log.None, NewClient: newFixedClients(t, clients), FindRetryWait: time.Second}
	got, err := s.GetClusters(context.Background(), "x86_64", retryContexts, all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Cluster.Name != "healthy" {
		t.Fatalf("expected only healthy to be returned, got %+v", got)
	}
}

func TestSelectorPutsProbeFailuresInRetryWait(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	clients := map[string]*fakeClient{
		"flaky":   {name: "flaky", probeErr: errors.New("connection refused")},
		"healthy": {name: "healthy", activeCount: 0},
	}
	all := []Cluster{
		{Name: "flaky", Priority: 1, MaxConcurrentBuilds: 5},
		{Name: "healthy", Priority: 2, MaxConcurrentBuilds: 5},
	}
	retryContexts := map[string]*RetryContext{
		"flaky":   NewRetryContextWithClock(5, clk),
		"healthy": NewRetryContextWithClock(5, clk),
	}

	s := &Selector{Clock: clk, Logger: log.None, NewClient: newFixedClients(t, clients), FindRetryWait: 15 * time.Second}
	got, err := s.GetClusters(context.Background(), "x86_64", retryContexts, all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Cluster.Name != "healthy" {
		t.Fatalf("expected only healthy to be returned, got %+v", got)
	}
	if !retryContexts["flaky"].InRetryWait(clk.now) {
		t.Fatal("expected the flaky cluster to be put in retry wait after a probe failure")
	}
}
