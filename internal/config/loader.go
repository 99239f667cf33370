package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Defaults() to unspecified fields.
const (
	DefaultAddr         = ":8000"
	DefaultModelURI     = "models:/fraud-model/Production"
	DefaultTrackingURI  = "http://localhost:5000"
	DefaultRunPageSize  = 50
	DefaultMaxBodyBytes = 1 << 20
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr             string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelURI         string   `json:"model_uri" yaml:"model_uri" toml:"model_uri"`
	TrackingURI      string   `json:"tracking_uri" yaml:"tracking_uri" toml:"tracking_uri"`
	TrackingToken    string   `json:"tracking_token" yaml:"tracking_token" toml:"tracking_token"`
	ArtifactCacheDir string   `json:"artifact_cache_dir" yaml:"artifact_cache_dir" toml:"artifact_cache_dir"`
	ResolveTimeout   Duration `json:"resolve_timeout" yaml:"resolve_timeout" toml:"resolve_timeout"`
	RequestTimeout   Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	PredictTimeout   Duration `json:"predict_timeout" yaml:"predict_timeout" toml:"predict_timeout"`
	RunPageSize      int      `json:"run_page_size" yaml:"run_page_size" toml:"run_page_size"`
	MaxBodyBytes     int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`

	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat   string `json:"log_format" yaml:"log_format" toml:"log_format"`
	ONNXLibrary string `json:"onnx_library" yaml:"onnx_library" toml:"onnx_library"`
}

// Duration is a time.Duration written as a Go duration string ("30s") or as
// a number of seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText implements encoding.TextUnmarshaler (JSON strings, TOML).
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON also accepts bare numbers of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalYAML decodes scalar durations.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	return d.UnmarshalText([]byte(n.Value))
}

// ParseDuration parses "", a Go duration string, or an integer of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return v, nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables on cfg. Unset or empty variables
// leave the field alone. lookup is os.LookupEnv in production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("MODEL_URI", &cfg.ModelURI)
	str("MLFLOW_TRACKING_URI", &cfg.TrackingURI)
	str("MLFLOW_TRACKING_TOKEN", &cfg.TrackingToken)
	str("FRAUDD_ADDR", &cfg.Addr)
	str("FRAUDD_LOG_LEVEL", &cfg.LogLevel)
	str("FRAUDD_LOG_FORMAT", &cfg.LogFormat)
	str("FRAUDD_CACHE_DIR", &cfg.ArtifactCacheDir)
	str("ONNXRUNTIME_LIB", &cfg.ONNXLibrary)
	if v, ok := lookup("FRAUDD_RESOLVE_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FRAUDD_RESOLVE_TIMEOUT: %w", err)
		}
		cfg.ResolveTimeout = Duration(d)
	}
	return nil
}

// Defaults fills unspecified fields. Callers that want an empty ModelURI
// (run scan only) clear it after calling Defaults.
func (c *Config) Defaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelURI == "" {
		c.ModelURI = DefaultModelURI
	}
	if c.TrackingURI == "" {
		c.TrackingURI = DefaultTrackingURI
	}
	if c.RunPageSize <= 0 {
		c.RunPageSize = DefaultRunPageSize
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}
