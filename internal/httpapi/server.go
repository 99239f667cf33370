// Package httpapi is the serving gateway: /health, /predict and /metrics plus
// the operational probes /healthz, /readyz and /status.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fraudd/internal/features"
	"fraudd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Health() types.HealthResponse
	Status() types.StatusResponse
	Ready() bool
	Predict(ctx context.Context, rec features.Record) (float64, error)
}

// Option configures NewMux.
type Option func(*handlers)

// WithMetrics records request metrics on m and serves m at /metrics.
func WithMetrics(m *Metrics) Option {
	return func(h *handlers) {
		if m != nil {
			h.metrics = m
		}
	}
}

type handlers struct {
	svc     Service
	metrics *Metrics
}

// NewMux builds the gateway router. Without WithMetrics a private recorder
// is created.
func NewMux(svc Service, opts ...Option) http.Handler {
	h := &handlers{svc: svc}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, metrics, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		methods := corsAllowedMethods
		if len(methods) == 0 {
			methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: methods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.health)
	r.Post("/predict", h.predict)
	r.Get("/status", h.status)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no model"))
	})

	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// health reports liveness and whether a model is loaded.
//
// @Summary  Service health
// @Produce  json
// @Success  200 {object} types.HealthResponse
// @Router   /health [get]
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

// status reports the resolved model and the resolution attempt log.
//
// @Summary  Model status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// predict scores one transaction.
//
// @Summary  Score a transaction
// @Accept   json
// @Produce  json
// @Param    transaction body types.TransactionRequest true "Transaction features"
// @Success  200 {object} types.PredictResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  415 {object} types.ErrorResponse
// @Failure  422 {object} types.ErrorResponse
// @Failure  500 {object} types.ErrorResponse
// @Failure  503 {object} types.ErrorResponse
// @Router   /predict [post]
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lvl := requestLogLevel(r)
	fail := func(status int, msg, detail string, err error) {
		writeJSONError(w, status, msg, detail)
		logPredict(r, lvl, status, start, err)
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		fail(http.StatusUnsupportedMediaType, "Content-Type must be application/json", "", errors.New("unsupported media type"))
		return
	}
	// Limit body size (configurable, default 1MiB)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		msg := "invalid JSON body"
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			msg = "request body too large"
		}
		fail(http.StatusBadRequest, msg, "", err)
		return
	}
	tx, err := features.ParseTransaction(body)
	if err != nil {
		var fe *features.FieldError
		if errors.As(err, &fe) {
			fail(http.StatusUnprocessableEntity, fe.Error(), fe.Field, err)
			return
		}
		fail(http.StatusBadRequest, err.Error(), "", err)
		return
	}

	ctx, cancel := predictContext(r)
	defer cancel()
	p, err := h.svc.Predict(ctx, features.FromTransaction(tx))
	if err != nil {
		// If context was canceled (client disconnect), just return.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			fail(http.StatusGatewayTimeout, "prediction timed out", err.Error(), err)
			return
		}
		status := http.StatusInternalServerError
		var he HTTPError
		if errors.As(err, &he) {
			status = he.StatusCode()
		}
		fail(status, err.Error(), errorDetail(err), err)
		return
	}
	writeJSON(w, http.StatusOK, types.PredictResponse{FraudProbability: p})
	logPredict(r, lvl, http.StatusOK, start, nil)
}

// errorDetail prefers operator remediation, then the wrapped cause.
func errorDetail(err error) string {
	var rem remediator
	if errors.As(err, &rem) {
		return rem.Remediation()
	}
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}
