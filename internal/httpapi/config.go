package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for /predict.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes configures the maximum request body size. n <= 0 restores 1 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// predictTimeout bounds a single /predict call. Zero means no additional
// timeout beyond server/connection timeouts.
var predictTimeout time.Duration

// SetPredictTimeout sets the /predict timeout (0 disables).
func SetPredictTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	predictTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
