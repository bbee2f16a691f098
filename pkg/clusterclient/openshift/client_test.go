package openshift

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openshift/build-orchestrator/pkg/cluster"
	"github.com/openshift/build-orchestrator/pkg/clusterconfig"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURI: server.URL, Namespace: "builds"})
	if err != nil {
		t.Fatalf("unexpected error constructing client: %v", err)
	}
	return c, server
}

func TestActiveBuildCountSkipsFinishedBuilds(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{
				{"status": map[string]string{"phase": "Running"}},
				{"status": map[string]string{"phase": "Complete"}},
				{"status": map[string]string{"phase": "Pending"}},
			},
		})
	})

	count, err := c.ActiveBuildCount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active builds, got %d", count)
	}
}

func TestCreateWorkerBuildDecodesHandle(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"metadata": map[string]interface{}{"name": "build-1"},
			"status":   map[string]interface{}{"phase": "New"},
		})
	})

	b, err := c.CreateWorkerBuild(context.Background(), map[string]interface{}{"platform": "x86_64"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != "build-1" {
		t.Fatalf("expected build-1, got %s", b.Name())
	}
	if b.IsFinished() {
		t.Fatal("a New-phase build should not be finished")
	}
}

func TestWaitForBuildToFinishReturnsOnTerminalPhase(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"metadata": map[string]interface{}{"name": "build-1"},
			"status":   map[string]interface{}{"phase": "Complete"},
		})
	})

	b, err := c.WaitForBuildToFinish(context.Background(), "build-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.IsSucceeded() {
		t.Fatal("expected a Complete build to report success")
	}
}

func TestCancelBuildSendsPatch(t *testing.T) {
	var gotMethod string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		status, _ := body["status"].(map[string]interface{})
		if cancelled, _ := status["cancelled"].(bool); !cancelled {
			t.Errorf("expected cancelled=true in patch body, got %v", body)
		}
	})

	if err := c.CancelBuild(context.Background(), "build-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Fatalf("expected PATCH, got %s", gotMethod)
	}
}

func TestPodFailureReasonReturnsErrorWhenAbsent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"metadata": map[string]interface{}{"name": "build-1"},
			"status":   map[string]interface{}{"phase": "Failed"},
		})
	})

	if _, err := c.PodFailureReason(context.Background(), "build-1"); err == nil {
		t.Fatal("expected an error when no pod failure reason was recorded")
	}
}

func TestPodFailureReasonReturnsRecordedReason(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"metadata": map[string]interface{}{"name": "build-1"},
			"status":   map[string]interface{}{"phase": "Failed", "reason": "OOMKilled"},
		})
	})

	reason, err := c.PodFailureReason(context.Background(), "build-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "OOMKilled" {
		t.Fatalf("expected OOMKilled, got %q", reason)
	}
}

func TestDoRetriesTransientFailuresThenSucceeds(t *testing.T) {
	var attempts int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{},
		})
	})

	if _, err := c.ActiveBuildCount(context.Background()); err != nil {
		t.Fatalf("expected the third attempt to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestDoStopsRetryingOnNonTransientFailure(t *testing.T) {
	var attempts int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := c.ActiveBuildCount(context.Background()); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected a 4xx to not be retried, got %d attempts", got)
	}
}

func TestDoHonorsRetriesDisabled(t *testing.T) {
	var attempts int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx := cluster.WithRetriesDisabled(context.Background())
	if _, err := c.ActiveBuildCount(ctx); err == nil {
		t.Fatal("expected an error since every attempt fails")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly 1 attempt with retries disabled, got %d", got)
	}
}

func TestNewClientRequiresBaseURIAndNamespace(t *testing.T) {
	if _, err := NewClient(Config{Namespace: "builds"}); err == nil {
		t.Fatal("expected an error for a missing base URI")
	}
	if _, err := NewClient(Config{BaseURI: "https://example.com"}); err == nil {
		t.Fatal("expected an error for a missing namespace")
	}
}

func TestNewClientFactoryPrefersOSBSConfigDir(t *testing.T) {
	provider, err := clusterconfig.Parse([]byte(`
platforms:
  x86_64:
    - name: primary
      priority: 1
      max_concurrent_builds: 10
      base_uri: https://primary.example.com
      namespace: builds
      conf_section: primary
      conf_file: /etc/osbs/primary.conf
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory := NewClientFactory(provider, "/var/run/osbs", nil)
	client, err := factory(context.Background(), cluster.Cluster{Name: "primary"}, "x86_64", "builder:latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.(*Client).cfg.ConfFile; got != "/var/run/osbs/osbs.conf" {
		t.Fatalf("expected the osbs config dir to win, got %q", got)
	}

	factory = NewClientFactory(provider, "", nil)
	client, err = factory(context.Background(), cluster.Cluster{Name: "primary"}, "x86_64", "builder:latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.(*Client).cfg.ConfFile; got != "/etc/osbs/primary.conf" {
		t.Fatalf("expected the per-cluster conf_file, got %q", got)
	}
}

func TestBuildRepositoriesParsesAnnotation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"metadata": map[string]interface{}{
				"name": "build-1",
				"annotations": map[string]string{
					"repositories": `{"unique":["a/b"],"primary":["a/b:latest"]}`,
				},
			},
			"status": map[string]interface{}{"phase": "Complete"},
		})
	})

	b, err := c.WaitForBuildToFinish(context.Background(), "build-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unique, primary := b.Repositories()
	if len(unique) != 1 || unique[0] != "a/b" {
		t.Fatalf("unexpected unique repositories: %v", unique)
	}
	if len(primary) != 1 || primary[0] != "a/b:latest" {
		t.Fatalf("unexpected primary repositories: %v", primary)
	}
}
