// Package status exposes the migration state over HTTP so operators can
// watch the legacy-to-pipeline cutover: flag snapshot, circuit breaker,
// rollback state, per-path stats, and the latest canary comparison.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zero-models/zerogen/internal/migration"
)

// Config wires the status surface.
type Config struct {
	// Addr is the listen address, DefaultAddr when empty.
	Addr string
	// Flags is the routing state. Required.
	Flags *migration.FeatureFlags
	// Rollback supplies the persisted rollback state. Optional.
	Rollback *migration.RollbackManager
	// Stats supplies per-path run counters. Optional.
	Stats migration.StatsStore
	// Router supplies the latest canary comparison. Optional.
	Router *migration.Router
	// Reload, when set, is mounted at /reload so watch-mode dev clients
	// subscribe to regeneration events on the same server.
	Reload http.Handler
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Now is the clock, for tests.
	Now func() time.Time
}

// RollbackReport is the rollback slice of the status report.
type RollbackReport struct {
	State   migration.RollbackState   `json:"state"`
	History []migration.RollbackEvent `json:"history,omitempty"`
}

// Report is the GET /migration/status payload.
type Report struct {
	Status            string                         `json:"status"`
	GeneratedAt       time.Time                      `json:"generated_at"`
	Flags             migration.Snapshot             `json:"flags"`
	Rollback          RollbackReport                 `json:"rollback"`
	RecommendRollback bool                           `json:"recommend_rollback"`
	Stats             map[string]migration.PathStats `json:"stats,omitempty"`
	LastComparison    *migration.ComparisonReport    `json:"last_comparison,omitempty"`
}

// BuildReport assembles the migration status from whatever components are
// wired. It is also what `zerogen status` prints without serving HTTP.
func BuildReport(ctx context.Context, cfg Config) Report {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	report := Report{
		Status:      "ok",
		GeneratedAt: now(),
		Rollback:    RollbackReport{State: migration.StateActive},
	}

	if cfg.Flags != nil {
		report.Flags = cfg.Flags.Snapshot()
		if report.Flags.BreakerState == migration.BreakerOpen {
			report.Status = "degraded"
		}
	}
	if cfg.Rollback != nil {
		report.Rollback.State = cfg.Rollback.CurrentState()
		report.Rollback.History = cfg.Rollback.History()
		report.RecommendRollback = cfg.Rollback.RecommendRollback(cfg.Flags)
		if cfg.Rollback.RolledBack() {
			report.Status = "degraded"
		}
	} else if cfg.Flags != nil {
		report.RecommendRollback = report.Flags.BreakerState == migration.BreakerOpen
	}

	if cfg.Stats != nil {
		stats := make(map[string]migration.PathStats, 2)
		for _, path := range []string{migration.PathLegacy, migration.PathPipeline} {
			s, err := cfg.Stats.PathStats(ctx, path)
			if err != nil {
				logger.Warn("reading migration stats failed",
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}
			stats[path] = s
		}
		if len(stats) > 0 {
			report.Stats = stats
		}
	}

	if cfg.Router != nil {
		report.LastComparison = cfg.Router.LastComparison()
	}
	return report
}

// NewHandler mounts the status routes.
func NewHandler(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/migration/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, BuildReport(req.Context(), cfg))
	})
	if cfg.Reload != nil {
		r.Handle("/reload", cfg.Reload)
	}
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			logger.Debug("status request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
