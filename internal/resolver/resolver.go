package resolver

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"fraudd/internal/model"
	"fraudd/internal/registry"
)

// Strategy names, in cascade order.
const (
	StrategyDirect   = "direct"
	StrategyRegistry = "registry"
	StrategyRunScan  = "run_scan"
)

// DefaultPageSize caps the runs listed per experiment during the run scan.
const DefaultPageSize = 50

// modelArtifact is the run artifact the scan looks for.
const modelArtifact = "model"

// NothingAttempted is the last error when the cascade found nothing to try.
const NothingAttempted = `no resolution strategy attempted: configure MODEL_URI or log a "model" artifact to a run`

// Attempt records one load attempt or enumeration failure. Locator is empty
// for enumeration failures; Err is nil on success.
type Attempt struct {
	Strategy string
	Locator  string
	Err      error
}

// Resolver runs the resolution cascade against a registry client.
type Resolver struct {
	client   registry.Client
	log      zerolog.Logger
	pageSize int
	timeout  time.Duration
	metrics  *metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPageSize overrides the per-experiment run page size. Values <= 0 keep the default.
func WithPageSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithTimeout bounds the whole cascade. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics registers resolution metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Resolver) {
		if reg != nil {
			r.metrics = newMetrics(reg)
		}
	}
}

// New constructs a Resolver.
func New(client registry.Client, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{client: client, log: logger, pageSize: DefaultPageSize}
	for _, o := range opts {
		o(r)
	}
	return r
}

// strategy yields a handle or nil. Failures are recorded on the cascade.
type strategy struct {
	name string
	run  func(ctx context.Context, c *cascade) *model.Handle
}

// cascade accumulates attempts of one Resolve call.
type cascade struct {
	r         *Resolver
	attempts  []Attempt
	lastError string
}

// Resolve computes the model state for configured. It never fails: the
// returned State is Unloaded with the most recent failure when no strategy
// produced a model.
func (r *Resolver) Resolve(ctx context.Context, configured string) (State, []Attempt) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	configured = strings.TrimSpace(configured)
	start := time.Now()
	c := &cascade{r: r}
	for _, s := range r.strategies(configured) {
		if h := s.run(ctx, c); h != nil {
			r.metrics.setLoaded(true)
			r.log.Info().Str("strategy", s.name).Str("source", h.Source()).Str("flavor", h.Flavor()).
				Str("kind", string(h.Kind())).Int("attempts", len(c.attempts)).Dur("dur", time.Since(start)).
				Msg("model resolved")
			if h.Kind() == model.KindLabelOnly {
				r.log.Warn().Str("source", h.Source()).Msg("model exposes labels only; fraud_probability will be a class label")
			}
			return Loaded(h), c.attempts
		}
	}
	r.metrics.setLoaded(false)
	if c.lastError == "" {
		c.lastError = NothingAttempted
	}
	r.log.Error().Str("last_error", c.lastError).Int("attempts", len(c.attempts)).Dur("dur", time.Since(start)).
		Msg("no model resolved; serving without a model")
	return Unloaded(c.lastError), c.attempts
}

// strategies returns the cascade for configured. Registry enumeration only
// applies to registry-named locators, and the run scan only follows a
// registry-named or empty locator.
func (r *Resolver) strategies(configured string) []strategy {
	if configured == "" {
		return []strategy{{name: StrategyRunScan, run: r.runScan}}
	}
	loc := registry.ParseLocator(configured)
	out := []strategy{{name: StrategyDirect, run: func(ctx context.Context, c *cascade) *model.Handle {
		return c.try(ctx, StrategyDirect, loc)
	}}}
	if loc.Kind == registry.KindRegistryNamed {
		out = append(out,
			strategy{name: StrategyRegistry, run: func(ctx context.Context, c *cascade) *model.Handle {
				return r.registryVersions(ctx, c, loc.Name)
			}},
			strategy{name: StrategyRunScan, run: r.runScan},
		)
	}
	return out
}

func (r *Resolver) registryVersions(ctx context.Context, c *cascade, name string) *model.Handle {
	versions, err := r.client.GetLatestVersions(ctx, name)
	if err != nil {
		c.enumerationFailed(StrategyRegistry, "list versions of "+name, err)
		return nil
	}
	r.log.Debug().Str("model", name).Int("versions", len(versions)).Msg("registry versions listed")
	for _, v := range versions {
		if err := ctx.Err(); err != nil {
			c.enumerationFailed(StrategyRegistry, "registry enumeration", err)
			return nil
		}
		if h := c.try(ctx, StrategyRegistry, registry.RegistryNamed(name, v.Version)); h != nil {
			return h
		}
	}
	return nil
}

func (r *Resolver) runScan(ctx context.Context, c *cascade) *model.Handle {
	exps, err := r.client.ListExperiments(ctx)
	if err != nil {
		c.enumerationFailed(StrategyRunScan, "list experiments", err)
		return nil
	}
	sort.SliceStable(exps, func(i, j int) bool { return exps[i].CreationTime > exps[j].CreationTime })
	for _, exp := range exps {
		runs, err := r.client.SearchRuns(ctx, exp.ID, true, r.pageSize)
		if err != nil {
			c.enumerationFailed(StrategyRunScan, "search runs of experiment "+exp.ID, err)
			return nil
		}
		for _, run := range runs {
			if err := ctx.Err(); err != nil {
				c.enumerationFailed(StrategyRunScan, "run scan", err)
				return nil
			}
			arts, err := r.client.ListArtifacts(ctx, run.ID, "")
			if err != nil {
				c.enumerationFailed(StrategyRunScan, "list artifacts of run "+run.ID, err)
				return nil
			}
			if !hasArtifact(arts, modelArtifact) {
				continue
			}
			if h := c.try(ctx, StrategyRunScan, registry.RunArtifact(run.ID, modelArtifact)); h != nil {
				return h
			}
		}
	}
	return nil
}

func hasArtifact(arts []registry.Artifact, name string) bool {
	for _, a := range arts {
		if strings.Trim(a.Path, "/") == name {
			return true
		}
	}
	return false
}

// try loads loc and records the outcome.
func (c *cascade) try(ctx context.Context, strategy string, loc registry.Locator) *model.Handle {
	h, err := c.r.client.LoadArtifact(ctx, loc)
	if err == nil && h == nil {
		err = errNilHandle
	}
	c.attempts = append(c.attempts, Attempt{Strategy: strategy, Locator: loc.String(), Err: err})
	if err != nil {
		c.lastError = loc.String() + ": " + err.Error()
		c.r.metrics.observe(strategy, outcomeFailure)
		c.r.log.Warn().Str("strategy", strategy).Str("locator", loc.String()).Err(err).Msg("model load failed")
		return nil
	}
	c.r.metrics.observe(strategy, outcomeSuccess)
	return h
}

func (c *cascade) enumerationFailed(strategy, what string, err error) {
	c.attempts = append(c.attempts, Attempt{Strategy: strategy, Err: err})
	c.lastError = what + ": " + err.Error()
	c.r.metrics.observe(strategy, outcomeEnumerationError)
	c.r.log.Warn().Str("strategy", strategy).Err(err).Msg(what + " failed")
}
