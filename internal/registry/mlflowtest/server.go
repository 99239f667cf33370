// Package mlflowtest provides an in-memory MLflow tracking server for tests.
// It implements the subset of the REST API and the artifact proxy used by
// registry.MLflowClient.
package mlflowtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type experiment struct {
	ID      string
	Name    string
	Created int64
}

type run struct {
	ID        string
	ExpID     string
	StartTime int64
}

type version struct {
	Name    string
	Version string
	Stage   string
	RunID   string
	Path    string
}

// Server is a fake tracking server. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	experiments []experiment
	runs        []run
	files       map[string][]byte // artifact proxy path -> content
	versions    []version
	down        bool
	hits        map[string]int
}

// NewServer starts a fake tracking server. Call Close when done.
func NewServer() *Server {
	s := &Server{files: map[string][]byte{}, hits: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/search", s.experimentsSearch)
	mux.HandleFunc("/api/2.0/mlflow/runs/search", s.runsSearch)
	mux.HandleFunc("/api/2.0/mlflow/runs/get", s.runsGet)
	mux.HandleFunc("/api/2.0/mlflow/artifacts/list", s.artifactsList)
	mux.HandleFunc("/api/2.0/mlflow/registered-models/get-latest-versions", s.latestVersions)
	mux.HandleFunc("/api/2.0/mlflow/model-versions/get-download-uri", s.downloadURI)
	mux.HandleFunc("/api/2.0/mlflow-artifacts/artifacts", s.proxyList)
	mux.HandleFunc("/api/2.0/mlflow-artifacts/artifacts/", s.proxyGet)
	s.Server = httptest.NewServer(s.track(mux))
	return s
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		down := s.down
		s.mu.Unlock()
		if down {
			writeError(w, http.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE", "tracking server is down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetDown makes every endpoint answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// AddExperiment registers an experiment created at createdMs.
func (s *Server) AddExperiment(id, name string, createdMs int64) {
	s.mu.Lock()
	s.experiments = append(s.experiments, experiment{ID: id, Name: name, Created: createdMs})
	s.mu.Unlock()
}

// AddRun registers a run and its artifacts, keyed by path relative to the
// run's artifact root (e.g. "model/MLmodel").
func (s *Server) AddRun(expID, runID string, startMs int64, artifacts map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run{ID: runID, ExpID: expID, StartTime: startMs})
	for p, content := range artifacts {
		s.files[runRoot(expID, runID)+"/"+strings.Trim(p, "/")] = []byte(content)
	}
}

// AddVersion registers a model version whose artifact lives at artifactPath
// inside runID's artifact root.
func (s *Server) AddVersion(name, ver, stage, runID, artifactPath string) {
	s.mu.Lock()
	s.versions = append(s.versions, version{Name: name, Version: ver, Stage: stage, RunID: runID, Path: artifactPath})
	s.mu.Unlock()
}

// RunArtifactURI returns the artifact URI a run reports.
func (s *Server) RunArtifactURI(runID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.findRun(runID); ok {
		return "mlflow-artifacts:/" + runRoot(r.ExpID, r.ID)
	}
	return ""
}

func runRoot(expID, runID string) string { return expID + "/" + runID + "/artifacts" }

func (s *Server) findRun(id string) (run, bool) {
	for _, r := range s.runs {
		if r.ID == id {
			return r, true
		}
	}
	return run{}, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error_code": code, "message": msg})
}

func (s *Server) experimentsSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]map[string]any, 0, len(s.experiments))
	for _, e := range s.experiments {
		// creation_time as a string, the way protobuf JSON encodes int64
		list = append(list, map[string]any{"experiment_id": e.ID, "name": e.Name, "creation_time": strconv.FormatInt(e.Created, 10)})
	}
	writeJSON(w, map[string]any{"experiments": list})
}

func (s *Server) runsSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExperimentIDs []string `json:"experiment_ids"`
		MaxResults    int      `json:"max_results"`
		OrderBy       []string `json:"order_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var runs []run
	for _, rn := range s.runs {
		for _, id := range req.ExperimentIDs {
			if rn.ExpID == id {
				runs = append(runs, rn)
			}
		}
	}
	if len(req.OrderBy) > 0 && req.OrderBy[0] == "attributes.start_time DESC" {
		sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartTime > runs[j].StartTime })
	}
	if req.MaxResults > 0 && len(runs) > req.MaxResults {
		runs = runs[:req.MaxResults]
	}
	out := make([]map[string]any, 0, len(runs))
	for _, rn := range runs {
		out = append(out, map[string]any{"info": s.runInfo(rn)})
	}
	writeJSON(w, map[string]any{"runs": out})
}

func (s *Server) runInfo(rn run) map[string]any {
	return map[string]any{
		"run_id":        rn.ID,
		"experiment_id": rn.ExpID,
		"start_time":    rn.StartTime,
		"artifact_uri":  "mlflow-artifacts:/" + runRoot(rn.ExpID, rn.ID),
	}
}

func (s *Server) runsGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.findRun(r.URL.Query().Get("run_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "run not found")
		return
	}
	writeJSON(w, map[string]any{"run": map[string]any{"info": s.runInfo(rn)}})
}

// children lists the direct entries below prefix in the artifact tree.
func (s *Server) children(prefix string) []map[string]any {
	prefix = strings.Trim(prefix, "/")
	seen := map[string]bool{}
	var out []map[string]any
	var keys []string
	for k := range s.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix+"/") {
			continue
		}
		rest := strings.TrimPrefix(k, prefix+"/")
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		entry := map[string]any{"path": name, "is_dir": isDir}
		if !isDir {
			entry["file_size"] = len(s.files[k])
		}
		out = append(out, entry)
	}
	return out
}

func (s *Server) artifactsList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.findRun(r.URL.Query().Get("run_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "run not found")
		return
	}
	sub := strings.Trim(r.URL.Query().Get("path"), "/")
	prefix := runRoot(rn.ExpID, rn.ID)
	if sub != "" {
		prefix += "/" + sub
	}
	files := s.children(prefix)
	// the run-scoped listing reports paths relative to the run root
	for _, f := range files {
		if sub != "" {
			f["path"] = sub + "/" + f["path"].(string)
		}
	}
	writeJSON(w, map[string]any{"root_uri": "mlflow-artifacts:/" + runRoot(rn.ExpID, rn.ID), "files": files})
}

func (s *Server) latestVersions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string   `json:"name"`
		Stages []string `json:"stages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	out := []map[string]any{}
	for _, v := range s.versions {
		if v.Name != req.Name {
			continue
		}
		found = true
		if len(req.Stages) > 0 && !containsFold(req.Stages, v.Stage) {
			continue
		}
		out = append(out, map[string]any{
			"name":          v.Name,
			"version":       v.Version,
			"current_stage": v.Stage,
			"run_id":        v.RunID,
			"source":        "runs:/" + v.RunID + "/" + v.Path,
		})
	}
	if !found {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", fmt.Sprintf("Registered Model with name=%s not found", req.Name))
		return
	}
	writeJSON(w, map[string]any{"model_versions": out})
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

func (s *Server) downloadURI(w http.ResponseWriter, r *http.Request) {
	name, ver := r.URL.Query().Get("name"), r.URL.Query().Get("version")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.Name == name && v.Version == ver {
			rn, ok := s.findRun(v.RunID)
			if !ok {
				break
			}
			writeJSON(w, map[string]any{"artifact_uri": "mlflow-artifacts:/" + runRoot(rn.ExpID, rn.ID) + "/" + v.Path})
			return
		}
	}
	writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", fmt.Sprintf("Model Version (name=%s, version=%s) not found", name, ver))
}

func (s *Server) proxyList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{"files": s.children(r.URL.Query().Get("path"))})
}

func (s *Server) proxyGet(w http.ResponseWriter, r *http.Request) {
	p := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/"), "/")
	s.mu.Lock()
	b, ok := s.files[p]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "artifact not found: "+p)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(b)
}
