package resolver

import "fraudd/internal/model"

// State is the outcome of resolution. The zero value is Unloaded with no
// error message.
type State struct {
	handle    *model.Handle
	lastError string
}

// Loaded returns a State serving h.
func Loaded(h *model.Handle) State { return State{handle: h} }

// Unloaded returns a State without a model, remembering why.
func Unloaded(lastError string) State { return State{lastError: lastError} }

// IsLoaded reports whether a model handle is available.
func (s State) IsLoaded() bool { return s.handle != nil }

// Handle returns the loaded model, or nil when Unloaded.
func (s State) Handle() *model.Handle { return s.handle }

// LastError returns the most recent resolution failure. Empty when Loaded.
func (s State) LastError() string {
	if s.handle != nil {
		return ""
	}
	return s.lastError
}
