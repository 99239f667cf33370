package resolver

import (
	"context"
	"time"

	"fraudd/internal/features"
	"fraudd/pkg/types"
)

// Service exposes a resolved State to the HTTP gateway. It holds no mutable
// state besides what it was built with and is safe for concurrent use.
type Service struct {
	state    State
	attempts []types.ResolutionAttempt
	started  time.Time
}

// NewService wraps the result of Resolve.
func NewService(state State, attempts []Attempt) *Service {
	return &Service{state: state, attempts: AttemptLog(attempts), started: time.Now()}
}

// AttemptLog converts attempts to their wire form.
func AttemptLog(attempts []Attempt) []types.ResolutionAttempt {
	out := make([]types.ResolutionAttempt, 0, len(attempts))
	for _, a := range attempts {
		ra := types.ResolutionAttempt{Strategy: a.Strategy, Locator: a.Locator}
		if a.Err != nil {
			ra.Error = a.Err.Error()
		}
		out = append(out, ra)
	}
	return out
}

// State returns the resolved state.
func (s *Service) State() State { return s.state }

// Ready reports whether a model is loaded.
func (s *Service) Ready() bool { return s.state.IsLoaded() }

// Health builds the /health payload. It is a pure function of the state.
func (s *Service) Health() types.HealthResponse {
	return types.HealthResponse{
		Status:      "ok",
		ModelLoaded: s.state.IsLoaded(),
		ModelError:  s.state.LastError(),
	}
}

// Status builds the /status payload.
func (s *Service) Status() types.StatusResponse {
	resp := types.StatusResponse{
		ModelLoaded:    s.state.IsLoaded(),
		ModelError:     s.state.LastError(),
		Attempts:       append([]types.ResolutionAttempt(nil), s.attempts...),
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	if h := s.state.Handle(); h != nil {
		resp.ModelSource = h.Source()
		resp.ModelFlavor = h.Flavor()
		resp.InferenceKind = string(h.Kind())
	}
	return resp
}

// Predict scores one record. It returns ErrModelUnavailable while Unloaded,
// the context error when ctx ends, and *InferenceError for model failures.
func (s *Service) Predict(ctx context.Context, rec features.Record) (float64, error) {
	h := s.state.Handle()
	if h == nil {
		return 0, ErrModelUnavailable(s.state.LastError())
	}
	p, err := h.Predict(ctx, rec)
	// inference is not interruptible; a result that arrives after ctx ended is dropped
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	return p, nil
}
