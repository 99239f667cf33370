package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"fraudd/internal/httpapi"
	"fraudd/internal/registry"
	"fraudd/internal/registry/mlflowtest"
	"fraudd/internal/resolver"
)

// newGateway resolves modelURI against the tracking server at trackingURI and
// serves the result the way `fraudd serve` does.
func newGateway(t *testing.T, trackingURI, modelURI string) (*httptest.Server, *resolver.Service) {
	t.Helper()
	metrics := httpapi.NewMetrics()
	client := registry.NewMLflowClient(registry.MLflowConfig{TrackingURI: trackingURI, CacheDir: t.TempDir()}, zerolog.Nop())
	res := resolver.New(client, zerolog.Nop(), resolver.WithMetrics(metrics.Registry()))
	state, attempts := res.Resolve(context.Background(), modelURI)
	svc := resolver.NewService(state, attempts)
	srv := httptest.NewServer(httpapi.NewMux(svc, httpapi.WithMetrics(metrics)))
	t.Cleanup(srv.Close)
	return srv, svc
}

// newTracking starts a fake tracking server with one experiment.
func newTracking(t *testing.T) *mlflowtest.Server {
	t.Helper()
	ts := mlflowtest.NewServer()
	t.Cleanup(ts.Close)
	ts.AddExperiment("1", "fraud-detection", 1000)
	return ts
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}
