package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, request logging is off.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("FRAUDD_REQUEST_LOG"))

// SetDefaultRequestLogLevel overrides the level used when a request carries
// no override.
func SetDefaultRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logPredict emits the end-of-request line for /predict. Errors are logged
// from LevelError up, successes from LevelInfo up.
func logPredict(r *http.Request, lvl LogLevel, status int, start time.Time, err error) {
	if zlog == nil || lvl == LevelOff || (err == nil && lvl < LevelInfo) {
		return
	}
	var ev *zerolog.Event
	switch {
	case status >= 500:
		ev = zlog.Error()
	case err != nil:
		ev = zlog.Warn()
	default:
		ev = zlog.Info()
	}
	ev = ev.Str("path", r.URL.Path).Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("predict end")
}
