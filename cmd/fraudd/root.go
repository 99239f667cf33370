package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fraudd/internal/common/fsutil"
	"fraudd/internal/config"
	"fraudd/internal/features"
	"fraudd/internal/httpapi"
	"fraudd/internal/model"
	"fraudd/internal/registry"
	"fraudd/internal/resolver"
)

// errUnloaded makes `fraudd resolve` exit non-zero without extra output.
var errUnloaded = errors.New("no model resolved")

var errUnloadedScore = errors.New("cannot score without a model")

// flags holds command-line overrides applied on top of file and env config.
type flags struct {
	configPath     string
	addr           string
	modelURI       string
	trackingURI    string
	cacheDir       string
	logLevel       string
	logFormat      string
	resolveTimeout time.Duration
	corsOrigins    []string
}

// buildRootCmd constructs the fraudd command tree writing to out and errOut.
func buildRootCmd(out, errOut io.Writer) *cobra.Command {
	return buildRootCmdWith(&flags{}, out, errOut)
}

// buildRootCmdWith binds the command tree to f.
func buildRootCmdWith(f *flags, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "fraudd",
		Short:         "Fraud model serving gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&f.modelURI, "model-uri", "", "Model locator (defaults MODEL_URI or models:/fraud-model/Production); empty scans runs only")
	pf.StringVar(&f.trackingURI, "tracking-uri", "", "MLflow tracking server (defaults MLFLOW_TRACKING_URI or http://localhost:5000)")
	pf.StringVar(&f.cacheDir, "cache-dir", "", "Directory for downloaded artifacts (defaults FRAUDD_CACHE_DIR or the OS temp dir)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults FRAUDD_LOG_LEVEL or info)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: console|json (defaults FRAUDD_LOG_FORMAT or console)")
	pf.DurationVar(&f.resolveTimeout, "resolve-timeout", 0, "Bound on startup resolution; 0 waits indefinitely")

	serveCmd := &cobra.Command{Use: "serve", Short: "Resolve the model and serve HTTP", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd, f, errOut)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	}}
	serveCmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address (defaults FRAUDD_ADDR or :8000)")
	serveCmd.Flags().StringSliceVar(&f.corsOrigins, "cors-origins", nil, "Enable CORS for these origins")

	resolveCmd := &cobra.Command{Use: "resolve", Short: "Run model resolution once and print the outcome", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd, f, errOut)
		if err != nil {
			return err
		}
		svc := resolve(cmd.Context(), cfg, log, nil)
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(svc.Status()); err != nil {
			return err
		}
		if !svc.Ready() {
			return errUnloaded
		}
		return nil
	}}

	var csvPath string
	scoreCmd := &cobra.Command{Use: "score", Short: "Score every row of a CSV file", Example: "  fraudd score --csv data/transactions.csv", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd, f, errOut)
		if err != nil {
			return err
		}
		return score(cmd.Context(), cfg, log, csvPath, out)
	}}
	scoreCmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with transaction columns")
	_ = scoreCmd.MarkFlagRequired("csv")

	root.AddCommand(serveCmd, resolveCmd, scoreCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(out) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(out) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(out, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(out) }})
	root.AddCommand(completionCmd)

	return root
}

// setup loads configuration (file, then env, then defaults, then flags) and
// builds the logger.
func setup(cmd *cobra.Command, f *flags, errOut io.Writer) (config.Config, zerolog.Logger, error) {
	var cfg config.Config
	if f.configPath != "" {
		p, err := fsutil.ExpandHome(f.configPath)
		if err != nil {
			return cfg, zerolog.Nop(), err
		}
		if cfg, err = config.Load(p); err != nil {
			return cfg, zerolog.Nop(), fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, zerolog.Nop(), err
	}
	cfg.Defaults()

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("model-uri") {
		cfg.ModelURI = f.modelURI
	}
	if changed("tracking-uri") {
		cfg.TrackingURI = f.trackingURI
	}
	if changed("cache-dir") {
		cfg.ArtifactCacheDir = f.cacheDir
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("resolve-timeout") {
		cfg.ResolveTimeout = config.Duration(f.resolveTimeout)
	}
	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("cors-origins") {
		cfg.CORSEnabled = len(f.corsOrigins) > 0
		cfg.CORSAllowedOrigins = f.corsOrigins
	}
	if cfg.ArtifactCacheDir != "" {
		p, err := fsutil.ExpandHome(cfg.ArtifactCacheDir)
		if err != nil {
			return cfg, zerolog.Nop(), err
		}
		cfg.ArtifactCacheDir = p
	}

	log, err := newLogger(errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if cfg.ONNXLibrary != "" {
		model.SetONNXLibrary(cfg.ONNXLibrary)
	}
	return cfg, log, nil
}

// resolve runs the cascade once and wraps the result. reg receives the
// resolution metrics when non-nil.
func resolve(ctx context.Context, cfg config.Config, log zerolog.Logger, reg prometheus.Registerer) *resolver.Service {
	client := registry.NewMLflowClient(registry.MLflowConfig{
		TrackingURI:    cfg.TrackingURI,
		Token:          cfg.TrackingToken,
		CacheDir:       cfg.ArtifactCacheDir,
		RequestTimeout: cfg.RequestTimeout.D(),
	}, log.With().Str("component", "registry").Logger())
	opts := []resolver.Option{
		resolver.WithPageSize(cfg.RunPageSize),
		resolver.WithTimeout(cfg.ResolveTimeout.D()),
	}
	if reg != nil {
		opts = append(opts, resolver.WithMetrics(reg))
	}
	res := resolver.New(client, log.With().Str("component", "resolver").Logger(), opts...)
	log.Info().Str("model_uri", cfg.ModelURI).Str("tracking_uri", cfg.TrackingURI).Msg("resolving model")
	state, attempts := res.Resolve(ctx, cfg.ModelURI)
	return resolver.NewService(state, attempts)
}

// serve resolves the model, then serves HTTP until ctx is canceled.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	metrics := httpapi.NewMetrics()
	svc := resolve(ctx, cfg, log, metrics.Registry())

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetPredictTimeout(cfg.PredictTimeout.D())
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSAllowedOrigins, cfg.CORSAllowedMethods, cfg.CORSAllowedHeaders)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc, httpapi.WithMetrics(metrics)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Bool("model_loaded", svc.Ready()).Msg("fraudd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	// Graceful shutdown (Ctrl+C / SIGTERM)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("fraudd stopped")
	return nil
}

// score prints one fraud probability per CSV row.
func score(ctx context.Context, cfg config.Config, log zerolog.Logger, csvPath string, out io.Writer) error {
	fh, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer fh.Close()
	table, err := features.ReadCSV(fh)
	if err != nil {
		return fmt.Errorf("read %s: %w", csvPath, err)
	}
	svc := resolve(ctx, cfg, log, nil)
	if !svc.Ready() {
		return fmt.Errorf("%w: %s", errUnloadedScore, svc.State().LastError())
	}
	for i, rec := range table.Rows {
		p, err := svc.Predict(ctx, rec)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "%g\n", p)
	}
	return nil
}
