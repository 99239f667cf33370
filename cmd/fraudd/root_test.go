package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"fraudd/internal/registry/mlflowtest"
	"fraudd/pkg/types"
)

// clearEnv isolates tests from the caller's configuration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MODEL_URI", "MLFLOW_TRACKING_URI", "MLFLOW_TRACKING_TOKEN", "FRAUDD_ADDR", "FRAUDD_LOG_LEVEL", "FRAUDD_LOG_FORMAT", "FRAUDD_CACHE_DIR", "FRAUDD_RESOLVE_TIMEOUT", "ONNXRUNTIME_LIB"} {
		t.Setenv(k, "")
	}
}

func newServer(t *testing.T) *mlflowtest.Server {
	t.Helper()
	srv := mlflowtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddExperiment("1", "fraud", 1000)
	srv.AddRun("1", "r1", 2000, mlflowtest.LogisticModel("model", -1, 0.01, 0.5, -0.25))
	return srv
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := buildRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestResolveCmd_Loaded(t *testing.T) {
	clearEnv(t)
	srv := newServer(t)
	out, _, err := execute(t, "resolve", "--tracking-uri", srv.URL, "--model-uri", "runs:/r1/model", "--cache-dir", t.TempDir(), "--log-level", "error")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var st types.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("json: %v out=%q", err, out)
	}
	if !st.ModelLoaded || st.ModelSource != "runs:/r1/model" || len(st.Attempts) != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestResolveCmd_UnloadedExitsNonZero(t *testing.T) {
	clearEnv(t)
	srv := newServer(t)
	srv.SetDown(true)
	t.Setenv("MLFLOW_TRACKING_URI", srv.URL)
	out, _, err := execute(t, "resolve", "--log-format", "json")
	if !errors.Is(err, errUnloaded) {
		t.Fatalf("expected errUnloaded, got %v", err)
	}
	var st types.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.ModelLoaded || st.ModelError == "" {
		t.Fatalf("unexpected status: %+v", st)
	}
	// default locator: direct, registry enumeration and run scan were all tried
	if len(st.Attempts) != 3 || st.Attempts[0].Locator != "models:/fraud-model/Production" {
		t.Fatalf("unexpected attempts: %+v", st.Attempts)
	}
}

func TestScoreCmd(t *testing.T) {
	clearEnv(t)
	srv := newServer(t)
	csv := filepath.Join(t.TempDir(), "tx.csv")
	data := "amount,feature_1,feature_2,is_fraud,merchant\n10,0.2,1.0,0,acme\n5000,3,0,1,acme\n"
	if err := os.WriteFile(csv, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MODEL_URI", "runs:/r1/model")
	out, _, err := execute(t, "score", "--csv", csv, "--tracking-uri", srv.URL, "--cache-dir", t.TempDir())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	lines := strings.Fields(out)
	if len(lines) != 2 {
		t.Fatalf("expected 2 scores, got %q", out)
	}
	for _, l := range lines {
		p, err := strconv.ParseFloat(l, 64)
		if err != nil || p < 0 || p > 1 {
			t.Fatalf("bad score %q", l)
		}
	}
	low, _ := strconv.ParseFloat(lines[0], 64)
	high, _ := strconv.ParseFloat(lines[1], 64)
	if low >= high {
		t.Fatalf("expected the large transaction to score higher: %v vs %v", low, high)
	}
}

func TestScoreCmd_RequiresCSV(t *testing.T) {
	clearEnv(t)
	if _, _, err := execute(t, "score"); err == nil {
		t.Fatal("expected missing --csv error")
	}
}

func TestSetup_Precedence(t *testing.T) {
	clearEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "fraudd.yaml")
	if err := os.WriteFile(cfgPath, []byte("addr: :7000\nmodel_uri: runs:/file/model\nrun_page_size: 10\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MODEL_URI", "runs:/env/model")
	f := &flags{}
	root := buildRootCmdWith(f, &bytes.Buffer{}, &bytes.Buffer{})
	serveCmd, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := serveCmd.ParseFlags([]string{"--config", cfgPath, "--addr", ":7001"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, _, err := setup(serveCmd, f, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if cfg.ModelURI != "runs:/env/model" || cfg.Addr != ":7001" || cfg.RunPageSize != 10 || cfg.TrackingURI != "http://localhost:5000" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestSetup_EmptyModelURIFlag(t *testing.T) {
	clearEnv(t)
	f := &flags{}
	root := buildRootCmdWith(f, &bytes.Buffer{}, &bytes.Buffer{})
	resolveCmd, _, _ := root.Find([]string{"resolve"})
	if err := resolveCmd.ParseFlags([]string{"--model-uri="}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, _, err := setup(resolveCmd, f, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if cfg.ModelURI != "" {
		t.Fatalf("explicit empty --model-uri must survive defaults: %q", cfg.ModelURI)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"service":"fraudd"`) {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	if _, err := newLogger(&buf, "loud", "json"); err == nil {
		t.Fatal("expected invalid level error")
	}
}
