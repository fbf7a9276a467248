package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zero-models/zerogen/internal/generate"
)

// fakePath counts invocations and returns a canned result per run.
type fakePath struct {
	results []*generate.Result
	errs    []error
	runs    int
}

func (p *fakePath) Run(_ context.Context, _ generate.Options) (*generate.Result, error) {
	i := p.runs
	p.runs++
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	if err := p.errs[i]; err != nil {
		return nil, err
	}
	res := *p.results[i]
	return &res, nil
}

func okPath(path string) *fakePath {
	return &fakePath{
		results: []*generate.Result{{RunID: path + "-run", Path: path, Success: true}},
		errs:    []error{nil},
	}
}

func failingPath(path string, err error) *fakePath {
	return &fakePath{
		results: []*generate.Result{nil},
		errs:    []error{err},
	}
}

func newTestRouter(t *testing.T, cfg RouterConfig) *Router {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC) }
	}
	r, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func TestRouterPercentageZeroRoutesLegacy(t *testing.T) {
	legacy := okPath(PathLegacy)
	pipeline := okPath(PathPipeline)
	r := newTestRouter(t, RouterConfig{
		Legacy:   legacy,
		Pipeline: pipeline,
		Flags:    NewFeatureFlags(FlagsConfig{Percentage: 0}),
	})

	res, err := r.Route(context.Background(), generate.Options{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Path != PathLegacy {
		t.Fatalf("result path = %s, want legacy", res.Path)
	}
	if legacy.runs != 1 || pipeline.runs != 0 {
		t.Fatalf("runs legacy=%d pipeline=%d, want 1/0", legacy.runs, pipeline.runs)
	}
}

func TestRouterPercentageHundredRoutesPipeline(t *testing.T) {
	legacy := okPath(PathLegacy)
	pipeline := okPath(PathPipeline)
	stats := NewMemoryStats()
	r := newTestRouter(t, RouterConfig{
		Legacy:   legacy,
		Pipeline: pipeline,
		Flags:    NewFeatureFlags(FlagsConfig{Percentage: 100}),
		Stats:    stats,
	})

	res, err := r.Route(context.Background(), generate.Options{Tables: []string{"posts"}})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Path != PathPipeline {
		t.Fatalf("result path = %s, want pipeline", res.Path)
	}
	if legacy.runs != 0 || pipeline.runs != 1 {
		t.Fatalf("runs legacy=%d pipeline=%d, want 0/1", legacy.runs, pipeline.runs)
	}

	recorded, err := stats.PathStats(context.Background(), PathPipeline)
	if err != nil {
		t.Fatalf("PathStats: %v", err)
	}
	if recorded.Runs != 1 || recorded.Errors != 0 {
		t.Fatalf("pipeline stats = %+v, want 1 clean run", recorded)
	}
}

func TestRouterFallsBackOnPipelineError(t *testing.T) {
	legacy := okPath(PathLegacy)
	pipeline := failingPath(PathPipeline, errors.New("stage render (render): boom"))
	stats := NewMemoryStats()
	flags := NewFeatureFlags(FlagsConfig{Percentage: 100, CircuitBreaker: true, ErrorThreshold: 5})
	r := newTestRouter(t, RouterConfig{
		Legacy:   legacy,
		Pipeline: pipeline,
		Flags:    flags,
		Stats:    stats,
	})

	res, err := r.Route(context.Background(), generate.Options{})
	if err != nil {
		t.Fatalf("Route should fall back, got error: %v", err)
	}
	if res.Path != PathLegacy {
		t.Fatalf("result path = %s, want legacy fallback", res.Path)
	}
	if pipeline.runs != 1 || legacy.runs != 1 {
		t.Fatalf("runs legacy=%d pipeline=%d, want 1/1", legacy.runs, pipeline.runs)
	}
	if got := flags.Snapshot().ConsecutiveErrors; got != 1 {
		t.Fatalf("consecutive errors = %d, want 1", got)
	}

	recorded, err := stats.PathStats(context.Background(), PathPipeline)
	if err != nil {
		t.Fatalf("PathStats: %v", err)
	}
	if recorded.Errors != 1 {
		t.Fatalf("pipeline error count = %d, want 1", recorded.Errors)
	}
}

func TestRouterUnsuccessfulResultCountsAsError(t *testing.T) {
	legacy := okPath(PathLegacy)
	pipeline := &fakePath{
		results: []*generate.Result{{RunID: "p", Path: PathPipeline, Success: false, Errors: []string{"posts: boom"}}},
		errs:    []error{nil},
	}
	flags := NewFeatureFlags(FlagsConfig{Percentage: 100, CircuitBreaker: true, ErrorThreshold: 5})
	r := newTestRouter(t, RouterConfig{Legacy: legacy, Pipeline: pipeline, Flags: flags})

	res, err := r.Route(context.Background(), generate.Options{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Path != PathLegacy {
		t.Fatalf("result path = %s, want legacy fallback", res.Path)
	}
	if got := flags.Snapshot().ConsecutiveErrors; got != 1 {
		t.Fatalf("consecutive errors = %d, want 1", got)
	}
}

func TestRouterBreakerForcesLegacyUntilReset(t *testing.T) {
	legacy := okPath(PathLegacy)
	pipeline := failingPath(PathPipeline, errors.New("boom"))
	flags := NewFeatureFlags(FlagsConfig{Percentage: 100, CircuitBreaker: true, ErrorThreshold: 2})
	r := newTestRouter(t, RouterConfig{Legacy: legacy, Pipeline: pipeline, Flags: flags})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := r.Route(ctx, generate.Options{})
		if err != nil {
			t.Fatalf("Route %d: %v", i, err)
		}
		if res.Path != PathLegacy {
			t.Fatalf("Route %d path = %s, want legacy fallback", i, res.Path)
		}
	}
	if flags.State() != BreakerOpen {
		t.Fatalf("breaker state = %s, want open after 2 consecutive errors", flags.State())
	}

	// Open breaker: pipeline no longer invoked even at 100 percent.
	if _, err := r.Route(ctx, generate.Options{}); err != nil {
		t.Fatalf("Route with open breaker: %v", err)
	}
	if pipeline.runs != 2 {
		t.Fatalf("pipeline runs = %d, want 2 (not invoked while open)", pipeline.runs)
	}
	if legacy.runs != 3 {
		t.Fatalf("legacy runs = %d, want 3", legacy.runs)
	}

	// Manual reset lets the pipeline try again, now healthy.
	flags.Reset()
	pipeline.results = []*generate.Result{{RunID: "p", Path: PathPipeline, Success: true}}
	pipeline.errs = []error{nil}
	pipeline.runs = 0

	res, err := r.Route(ctx, generate.Options{})
	if err != nil {
		t.Fatalf("Route after reset: %v", err)
	}
	if res.Path != PathPipeline {
		t.Fatalf("path after reset = %s, want pipeline", res.Path)
	}
	if pipeline.runs != 1 {
		t.Fatalf("pipeline runs after reset = %d, want 1", pipeline.runs)
	}
}

func TestRouterRollbackPinsLegacy(t *testing.T) {
	legacy := okPath(PathLegacy)
	pipeline := okPath(PathPipeline)
	rollback := newTestRollback(t, t.TempDir()+"/rollback.json")
	if err := rollback.Trigger("operator decision"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	r := newTestRouter(t, RouterConfig{
		Legacy:   legacy,
		Pipeline: pipeline,
		Flags:    NewFeatureFlags(FlagsConfig{Percentage: 100}),
		Rollback: rollback,
	})

	res, err := r.Route(context.Background(), generate.Options{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Path != PathLegacy {
		t.Fatalf("result path = %s, want legacy", res.Path)
	}
	if pipeline.runs != 0 {
		t.Fatalf("pipeline runs = %d, rolled back state must pin legacy", pipeline.runs)
	}
}

func TestRouterCanaryRunsBothAndCompares(t *testing.T) {
	legacy := &fakePath{
		results: []*generate.Result{{
			RunID:   "l",
			Path:    PathLegacy,
			Success: true,
			Files:   []generate.FileReport{{Path: "post.ts", Hash: "hash-a"}},
		}},
		errs: []error{nil},
	}
	pipeline := &fakePath{
		results: []*generate.Result{{
			RunID:   "p",
			Path:    PathPipeline,
			Success: true,
			Files:   []generate.FileReport{{Path: "post.ts", Hash: "hash-b"}},
		}},
		errs: []error{nil},
	}
	r := newTestRouter(t, RouterConfig{
		Legacy:   legacy,
		Pipeline: pipeline,
		Flags:    NewFeatureFlags(FlagsConfig{Percentage: 0, Canary: true}),
	})

	res, err := r.Route(context.Background(), generate.Options{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Path != PathLegacy {
		t.Fatalf("canary must return the legacy result, got %s", res.Path)
	}
	if legacy.runs != 1 || pipeline.runs != 1 {
		t.Fatalf("runs legacy=%d pipeline=%d, want both 1", legacy.runs, pipeline.runs)
	}

	report := r.LastComparison()
	if report == nil {
		t.Fatal("canary should store a comparison")
	}
	if report.Equivalent {
		t.Fatal("drifted hashes should not compare equivalent")
	}
	if report.Mismatches[0].Field != "files" {
		t.Fatalf("mismatch = %+v, want files drift", report.Mismatches[0])
	}
}

func TestRouterCanaryRespectsOpenBreaker(t *testing.T) {
	legacy := okPath(PathLegacy)
	pipeline := failingPath(PathPipeline, errors.New("boom"))
	flags := NewFeatureFlags(FlagsConfig{Canary: true, CircuitBreaker: true, ErrorThreshold: 1})
	r := newTestRouter(t, RouterConfig{Legacy: legacy, Pipeline: pipeline, Flags: flags})
	ctx := context.Background()

	if _, err := r.Route(ctx, generate.Options{}); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if flags.State() != BreakerOpen {
		t.Fatalf("breaker state = %s, want open after canary failure", flags.State())
	}
	if r.LastComparison() != nil {
		t.Fatal("hard pipeline error leaves nothing to compare")
	}

	if _, err := r.Route(ctx, generate.Options{}); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if pipeline.runs != 1 {
		t.Fatalf("pipeline runs = %d, open breaker must stop canary runs", pipeline.runs)
	}
	if legacy.runs != 2 {
		t.Fatalf("legacy runs = %d, want 2", legacy.runs)
	}
}

func TestNewRouterValidation(t *testing.T) {
	flags := NewFeatureFlags(FlagsConfig{})
	tests := []struct {
		name string
		cfg  RouterConfig
	}{
		{"missing legacy", RouterConfig{Pipeline: okPath(PathPipeline), Flags: flags}},
		{"missing pipeline", RouterConfig{Legacy: okPath(PathLegacy), Flags: flags}},
		{"missing flags", RouterConfig{Legacy: okPath(PathLegacy), Pipeline: okPath(PathPipeline)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRouter(tt.cfg); err == nil {
				t.Fatal("expected a wiring error")
			}
		})
	}
}
