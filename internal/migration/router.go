package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zero-models/zerogen/internal/generate"
)

// GenerationPath is one of the two generation implementations. The legacy
// coordinator and the staged pipeline both satisfy it.
type GenerationPath interface {
	Run(ctx context.Context, opts generate.Options) (*generate.Result, error)
}

// RouterConfig wires a Router.
type RouterConfig struct {
	// Legacy is the trusted coordinator path.
	Legacy GenerationPath
	// Pipeline is the staged path being migrated to.
	Pipeline GenerationPath
	// Flags steer routing. Required.
	Flags *FeatureFlags
	// Rollback pins the legacy path when rolled back. Optional.
	Rollback *RollbackManager
	// Stats records per-path runs. Optional.
	Stats StatsStore
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Now is the clock, for tests.
	Now func() time.Time
}

// Router sends each generation request down one path. New-pipeline failures
// feed the circuit breaker and fall back to the legacy path; canary mode
// runs both paths and diffs their results.
type Router struct {
	legacy     GenerationPath
	pipeline   GenerationPath
	flags      *FeatureFlags
	rollback   *RollbackManager
	stats      StatsStore
	comparator *OutputComparator
	logger     *zap.Logger
	now        func() time.Time

	mu             sync.Mutex
	lastComparison *ComparisonReport
}

// NewRouter validates the wiring and returns a router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Legacy == nil {
		return nil, fmt.Errorf("router: legacy path is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("router: pipeline path is required")
	}
	if cfg.Flags == nil {
		return nil, fmt.Errorf("router: feature flags are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		legacy:     cfg.Legacy,
		pipeline:   cfg.Pipeline,
		flags:      cfg.Flags,
		rollback:   cfg.Rollback,
		stats:      cfg.Stats,
		comparator: NewOutputComparator(logger),
		logger:     logger,
		now:        now,
	}, nil
}

// Route runs one generation request. A persisted rollback or an open
// breaker pins the legacy path; otherwise the flags pick per request.
func (r *Router) Route(ctx context.Context, opts generate.Options) (*generate.Result, error) {
	key := routingKey(opts)

	if r.rollback != nil && r.rollback.RolledBack() {
		r.logger.Debug("rollback pins legacy path", zap.String("key", key))
		return r.runLegacy(ctx, opts)
	}
	if r.flags.State() == BreakerOpen {
		r.logger.Debug("circuit breaker open, routing to legacy", zap.String("key", key))
		return r.runLegacy(ctx, opts)
	}

	if r.flags.CanaryEnabled() {
		return r.canary(ctx, opts)
	}

	if r.flags.UseNewPipeline(key) {
		res, err := r.runPipeline(ctx, opts)
		if err == nil && res.Success {
			r.flags.RecordNewPipelineSuccess()
			return res, nil
		}
		r.flags.RecordNewPipelineError()
		r.logger.Warn("new pipeline failed, falling back to legacy",
			zap.String("key", key),
			zap.Error(err),
		)
		return r.runLegacy(ctx, opts)
	}
	return r.runLegacy(ctx, opts)
}

// canary runs both paths and stores their diff. The pipeline runs first so
// the legacy output is what remains on disk; the legacy result is returned.
func (r *Router) canary(ctx context.Context, opts generate.Options) (*generate.Result, error) {
	pipeRes, pipeErr := r.runPipeline(ctx, opts)
	if pipeErr == nil && pipeRes.Success {
		r.flags.RecordNewPipelineSuccess()
	} else {
		r.flags.RecordNewPipelineError()
	}

	legacyRes, legacyErr := r.runLegacy(ctx, opts)

	if pipeErr != nil {
		r.logger.Warn("canary pipeline run failed", zap.Error(pipeErr))
	} else if legacyErr == nil {
		report := r.comparator.Compare(legacyRes, pipeRes)
		r.mu.Lock()
		r.lastComparison = &report
		r.mu.Unlock()
	}
	return legacyRes, legacyErr
}

// LastComparison returns the most recent canary diff, nil before the first.
func (r *Router) LastComparison() *ComparisonReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastComparison == nil {
		return nil
	}
	report := *r.lastComparison
	return &report
}

func (r *Router) runLegacy(ctx context.Context, opts generate.Options) (*generate.Result, error) {
	start := r.now()
	res, err := r.legacy.Run(ctx, opts)
	r.record(ctx, PathLegacy, r.now().Sub(start), err == nil && res != nil && res.Success)
	return res, err
}

func (r *Router) runPipeline(ctx context.Context, opts generate.Options) (*generate.Result, error) {
	start := r.now()
	res, err := r.pipeline.Run(ctx, opts)
	r.record(ctx, PathPipeline, r.now().Sub(start), err == nil && res != nil && res.Success)
	return res, err
}

func (r *Router) record(ctx context.Context, path string, elapsed time.Duration, success bool) {
	r.flags.RecordPerformance(path, elapsed)
	if r.stats == nil {
		return
	}
	if err := r.stats.RecordRun(ctx, path, elapsed, success); err != nil {
		r.logger.Warn("recording migration stats failed",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// routingKey folds the requested tables into a stable sticky-routing key.
func routingKey(opts generate.Options) string {
	if len(opts.Tables) == 0 {
		return "all"
	}
	tables := append([]string(nil), opts.Tables...)
	sort.Strings(tables)
	return strings.Join(tables, ",")
}
