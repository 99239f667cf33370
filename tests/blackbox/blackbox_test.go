package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"fraudd/internal/registry/mlflowtest"
	"fraudd/pkg/types"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "fraudd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/fraudd")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin, trackingURI, modelURI string) *serverProc {
	t.Helper()
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve",
		"--addr", fmt.Sprintf("127.0.0.1:%d", port),
		"--tracking-uri", trackingURI,
		"--model-uri", modelURI,
		"--cache-dir", t.TempDir(),
		"--log-format", "json",
	)
	cmd.Env = append(os.Environ(), "MODEL_URI=", "MLFLOW_TRACKING_URI=", "FRAUDD_ADDR=")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _, _ = cmd.Process.Wait() })

	// Wait for healthz
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return &serverProc{cmd: cmd, base: base}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)

	tracking := mlflowtest.NewServer()
	defer tracking.Close()
	tracking.AddExperiment("1", "fraud-detection", 1000)
	tracking.AddRun("1", "r1", 2000, mlflowtest.LogisticModel("model", -3, 0.002, 0.5, 0.1))
	tracking.AddVersion("fraud-model", "7", "Production", "r1", "model")

	sp := startServer(t, bin, tracking.URL, "models:/fraud-model/Production")

	// /health
	resp, body := get(t, sp.base+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health %d %s", resp.StatusCode, string(body))
	}
	var h types.HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatalf("health json: %v", err)
	}
	if !h.ModelLoaded {
		t.Fatalf("expected model loaded: %s", string(body))
	}

	// /predict
	resp, body = postJSON(t, sp.base+"/predict", []byte(`{"amount":250.5,"feature_1":0.3,"feature_2":"1.5"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/predict %d %s", resp.StatusCode, string(body))
	}
	var p types.PredictResponse
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("predict json: %v", err)
	}
	if p.FraudProbability <= 0 || p.FraudProbability >= 1 {
		t.Fatalf("probability out of range: %v", p.FraudProbability)
	}

	// /predict validation
	resp, body = postJSON(t, sp.base+"/predict", []byte(`{"amount":1,"feature_1":0}`))
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(body), "feature_2") {
		t.Fatalf("expected 422 naming feature_2, got %d %s", resp.StatusCode, string(body))
	}

	// /metrics
	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics %d", resp.StatusCode)
	}
	for _, want := range []string{"http_requests_total", "http_request_latency_seconds", "fraudd_model_loaded 1"} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestBlackbox_Degraded(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildBinary(t)

	tracking := mlflowtest.NewServer()
	defer tracking.Close()
	tracking.SetDown(true)

	sp := startServer(t, bin, tracking.URL, "models:/fraud-model/Production")

	resp, body := get(t, sp.base+"/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"model_loaded":false`) {
		t.Fatalf("/health %d %s", resp.StatusCode, string(body))
	}
	resp, body = postJSON(t, sp.base+"/predict", []byte(`{"amount":1,"feature_1":0,"feature_2":0}`))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", resp.StatusCode, string(body))
	}
	resp, _ = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz %d", resp.StatusCode)
	}
}
