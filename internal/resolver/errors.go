package resolver

import (
	"errors"
	"net/http"
)

var errNilHandle = errors.New("registry returned no model handle")

// remediation is appended to 503 responses while no model is loaded.
const remediation = "set MODEL_URI to a loadable model (models:/<name>/<stage|version>, runs:/<run_id>/model, or a local path) and restart the service"

// modelUnavailableError is returned by Service.Predict while Unloaded.
type modelUnavailableError struct{ lastError string }

func (e modelUnavailableError) Error() string {
	if e.lastError == "" {
		return "model not loaded"
	}
	return "model not loaded: " + e.lastError
}

func (modelUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// Remediation describes how an operator can recover.
func (modelUnavailableError) Remediation() string { return remediation }

// ErrModelUnavailable constructs the error reported while no model is loaded.
func ErrModelUnavailable(lastError string) error { return modelUnavailableError{lastError: lastError} }

// IsModelUnavailable reports whether err indicates that no model is loaded.
func IsModelUnavailable(err error) bool {
	var e modelUnavailableError
	return errors.As(err, &e)
}

// InferenceError wraps a failure raised by the loaded model.
type InferenceError struct{ Err error }

func (e *InferenceError) Error() string   { return "inference failed: " + e.Err.Error() }
func (e *InferenceError) Unwrap() error   { return e.Err }
func (e *InferenceError) StatusCode() int { return http.StatusInternalServerError }

// IsInferenceError reports whether err came from the model itself.
func IsInferenceError(err error) bool {
	var e *InferenceError
	return errors.As(err, &e)
}
