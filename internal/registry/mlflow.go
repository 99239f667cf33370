package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const apiPrefix = "/api/2.0/mlflow"

// experimentPageSize is the page size used when enumerating experiments.
const experimentPageSize = 1000

// MLflowConfig configures an MLflowClient.
type MLflowConfig struct {
	// TrackingURI is the tracking server base URL, e.g. http://localhost:5000.
	TrackingURI string
	// Token is sent as a bearer token when set (MLFLOW_TRACKING_TOKEN).
	Token string
	// CacheDir receives downloaded artifacts. Empty uses the OS temp dir.
	CacheDir       string
	ConnectTimeout time.Duration
	// RequestTimeout bounds each REST call. Zero means no per-call timeout.
	RequestTimeout time.Duration
}

// MLflowClient implements Client against the MLflow REST API 2.0.
type MLflowClient struct {
	baseURL    string
	token      string
	cacheDir   string
	reqTimeout time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// NewMLflowClient constructs an MLflow-backed registry client.
func NewMLflowClient(cfg MLflowConfig, logger zerolog.Logger) *MLflowClient {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0: deadlines come from the caller's context and reqTimeout.
	return &MLflowClient{
		baseURL:    strings.TrimRight(cfg.TrackingURI, "/"),
		token:      cfg.Token,
		cacheDir:   cfg.CacheDir,
		reqTimeout: cfg.RequestTimeout,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
		log:        logger,
	}
}

// BaseURL returns the tracking server URL the client talks to.
func (c *MLflowClient) BaseURL() string { return c.baseURL }

// int64Field accepts both JSON numbers and the string encoding protobuf uses
// for int64 values.
type int64Field int64

func (f *int64Field) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("int64 field: %w", err)
	}
	*f = int64Field(n)
	return nil
}

type apiErrorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (c *MLflowClient) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// send executes req and converts non-2xx responses into *APIError. The caller
// owns the returned body.
func (c *MLflowClient) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("mlflow %s: %w", req.URL.Path, ctxErr)
		}
		return nil, fmt.Errorf("mlflow %s: %w", req.URL.Path, err)
	}
	c.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).
		Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("mlflow request")
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Path: req.URL.Path}
	var eb apiErrorBody
	if json.Unmarshal(b, &eb) == nil && (eb.ErrorCode != "" || eb.Message != "") {
		apiErr.Code, apiErr.Message = eb.ErrorCode, eb.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(b))
	}
	return nil, apiErr
}

// call performs a JSON round trip against the REST API.
func (c *MLflowClient) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type experimentJSON struct {
	ExperimentID string     `json:"experiment_id"`
	Name         string     `json:"name"`
	CreationTime int64Field `json:"creation_time"`
}

// ListExperiments returns all active experiments, following pagination.
func (c *MLflowClient) ListExperiments(ctx context.Context) ([]Experiment, error) {
	var out []Experiment
	token := ""
	for {
		q := url.Values{"max_results": {strconv.Itoa(experimentPageSize)}}
		if token != "" {
			q.Set("page_token", token)
		}
		var resp struct {
			Experiments   []experimentJSON `json:"experiments"`
			NextPageToken string           `json:"next_page_token"`
		}
		if err := c.call(ctx, http.MethodGet, apiPrefix+"/experiments/search", q, nil, &resp); err != nil {
			return nil, err
		}
		for _, e := range resp.Experiments {
			out = append(out, Experiment{ID: e.ExperimentID, Name: e.Name, CreationTime: int64(e.CreationTime)})
		}
		if resp.NextPageToken == "" || resp.NextPageToken == token {
			return out, nil
		}
		token = resp.NextPageToken
	}
}

type runInfoJSON struct {
	RunID        string     `json:"run_id"`
	ExperimentID string     `json:"experiment_id"`
	StartTime    int64Field `json:"start_time"`
	ArtifactURI  string     `json:"artifact_uri"`
}

func (r runInfoJSON) toRun() Run {
	return Run{ID: r.RunID, ExperimentID: r.ExperimentID, StartTime: int64(r.StartTime), ArtifactURI: r.ArtifactURI}
}

// SearchRuns returns at most maxResults runs of one experiment.
func (c *MLflowClient) SearchRuns(ctx context.Context, experimentID string, orderByStartTimeDesc bool, maxResults int) ([]Run, error) {
	body := map[string]any{
		"experiment_ids": []string{experimentID},
		"max_results":    maxResults,
	}
	if orderByStartTimeDesc {
		body["order_by"] = []string{"attributes.start_time DESC"}
	}
	var resp struct {
		Runs []struct {
			Info runInfoJSON `json:"info"`
		} `json:"runs"`
	}
	if err := c.call(ctx, http.MethodPost, apiPrefix+"/runs/search", nil, body, &resp); err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(resp.Runs))
	for _, r := range resp.Runs {
		out = append(out, r.Info.toRun())
	}
	return out, nil
}

type fileInfoJSON struct {
	Path     string     `json:"path"`
	IsDir    bool       `json:"is_dir"`
	FileSize int64Field `json:"file_size"`
}

// ListArtifacts lists the artifacts of a run under path ("" for the root).
func (c *MLflowClient) ListArtifacts(ctx context.Context, runID, path string) ([]Artifact, error) {
	q := url.Values{"run_id": {runID}}
	if path != "" {
		q.Set("path", path)
	}
	var resp struct {
		Files []fileInfoJSON `json:"files"`
	}
	if err := c.call(ctx, http.MethodGet, apiPrefix+"/artifacts/list", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Artifact, 0, len(resp.Files))
	for _, f := range resp.Files {
		out = append(out, Artifact{Path: f.Path, IsDir: f.IsDir, Size: int64(f.FileSize)})
	}
	return out, nil
}

type modelVersionJSON struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	CurrentStage string `json:"current_stage"`
	Source       string `json:"source"`
	RunID        string `json:"run_id"`
}

func (c *MLflowClient) latestVersions(ctx context.Context, name string, stages []string) ([]ModelVersion, error) {
	body := map[string]any{"name": name}
	if len(stages) > 0 {
		body["stages"] = stages
	}
	var resp struct {
		ModelVersions []modelVersionJSON `json:"model_versions"`
	}
	if err := c.call(ctx, http.MethodPost, apiPrefix+"/registered-models/get-latest-versions", nil, body, &resp); err != nil {
		return nil, err
	}
	out := make([]ModelVersion, 0, len(resp.ModelVersions))
	for _, v := range resp.ModelVersions {
		out = append(out, ModelVersion{Name: v.Name, Version: v.Version, Stage: v.CurrentStage, Source: v.Source, RunID: v.RunID})
	}
	return out, nil
}

// GetLatestVersions returns the latest version per stage of a named model, in
// server order.
func (c *MLflowClient) GetLatestVersions(ctx context.Context, name string) ([]ModelVersion, error) {
	return c.latestVersions(ctx, name, nil)
}

func (c *MLflowClient) downloadURI(ctx context.Context, name, version string) (string, error) {
	var resp struct {
		ArtifactURI string `json:"artifact_uri"`
	}
	q := url.Values{"name": {name}, "version": {version}}
	if err := c.call(ctx, http.MethodGet, apiPrefix+"/model-versions/get-download-uri", q, nil, &resp); err != nil {
		return "", err
	}
	if resp.ArtifactURI == "" {
		return "", fmt.Errorf("model %s version %s has no artifact uri", name, version)
	}
	return resp.ArtifactURI, nil
}

func (c *MLflowClient) getRun(ctx context.Context, runID string) (Run, error) {
	var resp struct {
		Run struct {
			Info runInfoJSON `json:"info"`
		} `json:"run"`
	}
	if err := c.call(ctx, http.MethodGet, apiPrefix+"/runs/get", url.Values{"run_id": {runID}}, nil, &resp); err != nil {
		return Run{}, err
	}
	return resp.Run.Info.toRun(), nil
}
