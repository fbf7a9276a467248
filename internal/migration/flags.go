// Package migration routes generation requests between the legacy
// coordinator and the staged pipeline while the pipeline earns trust
// (Strangler Fig). Routing is percentage-based with optional sticky
// hashing, a circuit breaker forces the legacy path after consecutive
// pipeline failures, and a persistent rollback switch survives restarts.
package migration

import (
	"hash/fnv"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"
)

// Environment knobs read once at process configuration time. They override
// the configuration file so an operator can steer routing without a deploy.
const (
	EnvPercentage     = "ZEROGEN_MIGRATION_PERCENTAGE"
	EnvCanary         = "ZEROGEN_MIGRATION_CANARY"
	EnvCircuitBreaker = "ZEROGEN_MIGRATION_CIRCUIT_BREAKER"
)

// DefaultErrorThreshold is the consecutive-failure count that opens the
// circuit breaker.
const DefaultErrorThreshold = 5

// BreakerState is the circuit breaker position.
type BreakerState string

const (
	// BreakerClosed routes normally.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen forces every request to the legacy path until Reset.
	BreakerOpen BreakerState = "open"
)

// FlagsConfig is the routing configuration the flags are constructed from.
type FlagsConfig struct {
	// Percentage of requests routed to the new pipeline, 0 to 100.
	Percentage int
	// Canary runs both paths and compares their results.
	Canary bool
	// Sticky hashes the routing key so a table always takes the same path.
	Sticky bool
	// CircuitBreaker enables the consecutive-failure breaker.
	CircuitBreaker bool
	// ErrorThreshold is the consecutive failure count that opens the
	// breaker. Zero selects DefaultErrorThreshold.
	ErrorThreshold int
}

// FlagsConfigFromEnv applies the migration environment variables over a
// base configuration. Unset or unparseable values leave the base untouched.
func FlagsConfigFromEnv(base FlagsConfig) FlagsConfig {
	if v := os.Getenv(EnvPercentage); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.Percentage = n
		}
	}
	if v := os.Getenv(EnvCanary); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			base.Canary = b
		}
	}
	if v := os.Getenv(EnvCircuitBreaker); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			base.CircuitBreaker = b
		}
	}
	return base
}

// Snapshot is a point-in-time view of the flags for status reporting.
type Snapshot struct {
	Percentage        int          `json:"percentage"`
	Sticky            bool         `json:"sticky"`
	Canary            bool         `json:"canary"`
	BreakerEnabled    bool         `json:"circuit_breaker_enabled"`
	BreakerState      BreakerState `json:"circuit_breaker_state"`
	ConsecutiveErrors int          `json:"consecutive_errors"`
	ErrorThreshold    int          `json:"error_threshold"`
	OpenedAt          *time.Time   `json:"opened_at,omitempty"`
	LegacyRuns        int64        `json:"legacy_runs"`
	PipelineRuns      int64        `json:"pipeline_runs"`
	LegacyAvgMillis   int64        `json:"legacy_avg_ms"`
	PipelineAvgMillis int64        `json:"pipeline_avg_ms"`
}

// FeatureFlags decides per request whether the new pipeline runs, and holds
// the circuit breaker plus in-process performance accumulators. All methods
// are safe for concurrent use.
type FeatureFlags struct {
	mu  sync.Mutex
	cfg FlagsConfig

	breakerState      BreakerState
	consecutiveErrors int
	openedAt          time.Time

	legacyRuns      int64
	pipelineRuns    int64
	legacyElapsed   time.Duration
	pipelineElapsed time.Duration

	roll func() int
	now  func() time.Time
}

// NewFeatureFlags constructs the flags. Percentage is clamped to 0..100; a
// non-positive threshold selects the default.
func NewFeatureFlags(cfg FlagsConfig) *FeatureFlags {
	if cfg.Percentage < 0 {
		cfg.Percentage = 0
	}
	if cfg.Percentage > 100 {
		cfg.Percentage = 100
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultErrorThreshold
	}
	return &FeatureFlags{
		cfg:          cfg,
		breakerState: BreakerClosed,
		roll:         func() int { return rand.Intn(100) },
		now:          time.Now,
	}
}

// UseNewPipeline decides the path for one request. An open breaker always
// answers false. With sticky routing the key (normally the table name)
// hashes into a stable bucket; otherwise each request rolls independently.
func (f *FeatureFlags) UseNewPipeline(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.breakerState == BreakerOpen {
		return false
	}
	switch {
	case f.cfg.Percentage <= 0:
		return false
	case f.cfg.Percentage >= 100:
		return true
	}

	if f.cfg.Sticky && key != "" {
		h := fnv.New32a()
		h.Write([]byte(key))
		return int(h.Sum32()%100) < f.cfg.Percentage
	}
	return f.roll() < f.cfg.Percentage
}

// CanaryEnabled reports whether both paths run for comparison.
func (f *FeatureFlags) CanaryEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg.Canary
}

// RecordNewPipelineError counts a consecutive pipeline failure. The breaker
// opens when the count reaches the threshold, if the breaker is enabled.
func (f *FeatureFlags) RecordNewPipelineError() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.consecutiveErrors++
	if f.cfg.CircuitBreaker && f.breakerState == BreakerClosed && f.consecutiveErrors >= f.cfg.ErrorThreshold {
		f.breakerState = BreakerOpen
		f.openedAt = f.now()
	}
}

// RecordNewPipelineSuccess resets the consecutive failure count. An open
// breaker stays open; only Reset closes it.
func (f *FeatureFlags) RecordNewPipelineSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consecutiveErrors = 0
}

// RecordPerformance accumulates a run duration for the given path.
func (f *FeatureFlags) RecordPerformance(path string, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch path {
	case PathLegacy:
		f.legacyRuns++
		f.legacyElapsed += elapsed
	case PathPipeline:
		f.pipelineRuns++
		f.pipelineElapsed += elapsed
	}
}

// Reset closes the breaker and clears the consecutive failure count.
func (f *FeatureFlags) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakerState = BreakerClosed
	f.consecutiveErrors = 0
	f.openedAt = time.Time{}
}

// State returns the current breaker position.
func (f *FeatureFlags) State() BreakerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.breakerState
}

// Snapshot returns a copy of the current flag state for status reporting.
func (f *FeatureFlags) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		Percentage:        f.cfg.Percentage,
		Sticky:            f.cfg.Sticky,
		Canary:            f.cfg.Canary,
		BreakerEnabled:    f.cfg.CircuitBreaker,
		BreakerState:      f.breakerState,
		ConsecutiveErrors: f.consecutiveErrors,
		ErrorThreshold:    f.cfg.ErrorThreshold,
		LegacyRuns:        f.legacyRuns,
		PipelineRuns:      f.pipelineRuns,
	}
	if !f.openedAt.IsZero() {
		opened := f.openedAt
		s.OpenedAt = &opened
	}
	if f.legacyRuns > 0 {
		s.LegacyAvgMillis = f.legacyElapsed.Milliseconds() / f.legacyRuns
	}
	if f.pipelineRuns > 0 {
		s.PipelineAvgMillis = f.pipelineElapsed.Milliseconds() / f.pipelineRuns
	}
	return s
}
