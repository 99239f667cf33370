package types

// TransactionRequest is the POST /predict payload. Fields are pointers so a
// missing field can be told apart from an explicit zero.
type TransactionRequest struct {
	// Transaction amount.
	// example: 10
	Amount *Number `json:"amount" example:"10"`
	// First engineered feature.
	// example: 0.2
	Feature1 *Number `json:"feature_1" example:"0.2"`
	// Second engineered feature.
	// example: 1.0
	Feature2 *Number `json:"feature_2" example:"1.0"`
}

// PredictResponse is returned by POST /predict on success.
type PredictResponse struct {
	// Positive (fraud) class likelihood.
	// example: 0.07
	FraudProbability float64 `json:"fraud_probability" example:"0.07"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// Always "ok" while the process serves requests.
	// example: ok
	Status string `json:"status" example:"ok"`
	// Whether startup resolution produced a usable model.
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// Last resolution error when no model is loaded.
	ModelError string `json:"model_error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Optional diagnostic detail (validation field, inference error, remediation).
	Detail string `json:"detail,omitempty"`
}

// ResolutionAttempt is one entry of the startup resolution log.
type ResolutionAttempt struct {
	// Strategy that produced the attempt: direct, registry, run_scan.
	// example: registry
	Strategy string `json:"strategy" example:"registry"`
	// Locator that was tried, in URI syntax.
	// example: models:/fraud-model/3
	Locator string `json:"locator" example:"models:/fraud-model/3"`
	// Failure message; empty on success.
	Error string `json:"error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	ModelLoaded bool   `json:"model_loaded"`
	ModelError  string `json:"model_error,omitempty"`
	// Locator the loaded model was resolved from.
	// example: runs:/0f8a.../model
	ModelSource string `json:"model_source,omitempty"`
	// Artifact flavor of the loaded model.
	// example: tabular_json
	ModelFlavor string `json:"model_flavor,omitempty"`
	// Inference capability: probabilistic or label_only.
	// example: probabilistic
	InferenceKind string              `json:"inference_kind,omitempty"`
	Attempts      []ResolutionAttempt `json:"attempts"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
