package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fraudd/internal/httpapi"
	"fraudd/internal/model"
	"fraudd/internal/registry/mlflowtest"
	"fraudd/internal/resolver"
	"fraudd/pkg/types"
)

const sampleTx = `{"amount":10,"feature_1":0.2,"feature_2":1.0}`

// TestE2E_UnreachableRegistryServesDegraded covers an unresolvable locator
// with the registry down: the gateway stays up but refuses predictions.
func TestE2E_UnreachableRegistryServesDegraded(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	srv, _ := newGateway(t, deadURL, "models:/fraud-model/Production")

	for i := 0; i < 2; i++ {
		resp, body := httpGet(t, srv.URL+"/health")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("/health %d %s", resp.StatusCode, body)
		}
		var h types.HealthResponse
		if err := json.Unmarshal(body, &h); err != nil {
			t.Fatalf("json: %v", err)
		}
		if h.Status != "ok" || h.ModelLoaded || h.ModelError == "" {
			t.Fatalf("unexpected health: %+v", h)
		}
	}

	resp, body := postJSON(t, srv.URL+"/predict", sampleTx)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", resp.StatusCode, body)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("json: %v", err)
	}
	if e.Detail == "" {
		t.Fatalf("expected remediation detail: %+v", e)
	}

	resp, _ = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz %d", resp.StatusCode)
	}
	resp, body = httpGet(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("fraudd_model_loaded 0")) {
		t.Fatalf("/metrics %d, missing model gauge", resp.StatusCode)
	}
}

// TestE2E_DirectLocatorServesProbability covers a locator that loads on the
// first attempt.
func TestE2E_DirectLocatorServesProbability(t *testing.T) {
	ts := newTracking(t)
	ts.AddRun("1", "r1", 2000, mlflowtest.LogisticModel("model", -1, 0.01, 0.5, -0.25))

	srv, svc := newGateway(t, ts.URL, "runs:/r1/model")
	if !svc.Ready() {
		t.Fatalf("expected loaded: %+v", svc.Status())
	}

	resp, body := postJSON(t, srv.URL+"/predict", sampleTx)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/predict %d %s", resp.StatusCode, body)
	}
	var p types.PredictResponse
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("json: %v", err)
	}
	if p.FraudProbability < 0 || p.FraudProbability > 1 {
		t.Fatalf("probability out of range: %v", p.FraudProbability)
	}

	resp, body = postJSON(t, srv.URL+"/predict", `{"amount":10}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", resp.StatusCode, body)
	}

	_, body = httpGet(t, srv.URL+"/metrics")
	for _, want := range []string{
		`http_requests_total{endpoint="/predict",method="POST"} 2`,
		`http_request_latency_seconds_count{endpoint="/predict"} 2`,
		"fraudd_model_loaded 1",
		`fraudd_resolution_attempts_total{outcome="success",strategy="direct"} 1`,
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

// TestE2E_RegistryFallsThroughToSecondVersion covers a failed direct attempt
// followed by a registry listing whose first version cannot be loaded.
func TestE2E_RegistryFallsThroughToSecondVersion(t *testing.T) {
	ts := newTracking(t)
	ts.AddRun("1", "r-sk", 1500, mlflowtest.SklearnModel("model"))
	ts.AddRun("1", "r-lr", 1600, mlflowtest.LogisticModel("model", -2, 0.001, 1, 0))
	// no Production version, so the direct stage lookup fails
	ts.AddVersion("fraud-model", "1", "Staging", "r-sk", "model")
	ts.AddVersion("fraud-model", "2", "Archived", "r-lr", "model")

	srv, svc := newGateway(t, ts.URL, "models:/fraud-model/Production")
	st := svc.Status()
	if !st.ModelLoaded || st.ModelSource != "models:/fraud-model/2" {
		t.Fatalf("expected version 2, got %+v", st)
	}
	if len(st.Attempts) != 3 || st.Attempts[1].Error == "" || st.Attempts[2].Error != "" {
		t.Fatalf("unexpected attempts: %+v", st.Attempts)
	}

	_, body := httpGet(t, srv.URL+"/health")
	var h types.HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !h.ModelLoaded || h.ModelError != "" {
		t.Fatalf("earlier failures must not surface once loaded: %+v", h)
	}
	resp, body := postJSON(t, srv.URL+"/predict", sampleTx)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/predict %d %s", resp.StatusCode, body)
	}
}

// TestE2E_RunScanFindsNewestModel covers the run-artifact scan after the
// registry does not know the configured name.
func TestE2E_RunScanFindsNewestModel(t *testing.T) {
	ts := newTracking(t)
	ts.AddExperiment("2", "newer", 5000)
	ts.AddRun("1", "old-run", 100, mlflowtest.LogisticModel("model", 0, 0))
	ts.AddRun("2", "no-model", 300, map[string]string{"metrics.json": "{}"})
	ts.AddRun("2", "new-run", 200, mlflowtest.LogisticModel("model", 1, 0))

	_, svc := newGateway(t, ts.URL, "models:/unknown/Production")
	st := svc.Status()
	if !st.ModelLoaded || st.ModelSource != "runs:/new-run/model" {
		t.Fatalf("expected newest experiment's run, got %+v", st)
	}
	if ts.Hits("/api/2.0/mlflow/runs/search") != 1 {
		t.Fatalf("scan should stop at the first loadable run, searched %d experiments", ts.Hits("/api/2.0/mlflow/runs/search"))
	}
}

// TestE2E_LabelOnlyModelPassesThrough covers a model without probabilities.
func TestE2E_LabelOnlyModelPassesThrough(t *testing.T) {
	ts := newTracking(t)
	ts.AddRun("1", "r1", 1, map[string]string{
		"model/MLmodel":    "flavors:\n  tabular_json:\n    data: model.json\n",
		"model/model.json": `{"type":"threshold","feature":"amount","threshold":100}`,
	})
	srv, svc := newGateway(t, ts.URL, "runs:/r1/model")
	if st := svc.Status(); st.InferenceKind != "label_only" {
		t.Fatalf("unexpected status: %+v", st)
	}
	_, body := postJSON(t, srv.URL+"/predict", `{"amount":500,"feature_1":0,"feature_2":0}`)
	var p types.PredictResponse
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("json: %v", err)
	}
	if p.FraudProbability != 1 {
		t.Fatalf("expected raw label 1, got %v", p.FraudProbability)
	}
}

// slowModel answers after delay regardless of cancellation.
type slowModel struct{ delay time.Duration }

func (m slowModel) PredictProba([][]float64) ([][]float64, error) {
	time.Sleep(m.delay)
	return [][]float64{{0.3, 0.7}}, nil
}

func (m slowModel) Predict(rows [][]float64) ([][]float64, error) { return m.PredictProba(rows) }

// TestE2E_PredictTimeoutReturns504 covers a model slower than the configured
// prediction bound.
func TestE2E_PredictTimeoutReturns504(t *testing.T) {
	httpapi.SetPredictTimeout(10 * time.Millisecond)
	t.Cleanup(func() { httpapi.SetPredictTimeout(0) })

	h := model.NewHandle(model.Meta{Source: "runs:/slow/model", Flavor: model.FlavorTabular}, slowModel{delay: 100 * time.Millisecond})
	svc := resolver.NewService(resolver.Loaded(h), nil)
	srv := httptest.NewServer(httpapi.NewMux(svc))
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/predict", sampleTx)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d %s", resp.StatusCode, body)
	}
}
