package migration

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Generation path identifiers. They match the Path field stamped on
// generation results.
const (
	PathLegacy   = "legacy"
	PathPipeline = "pipeline"
)

// PathStats aggregates runs recorded for one generation path.
type PathStats struct {
	Runs        int64 `json:"runs"`
	Errors      int64 `json:"errors"`
	TotalMillis int64 `json:"total_ms"`
}

// AvgMillis is the mean run duration in milliseconds, zero when no runs
// were recorded.
func (s PathStats) AvgMillis() int64 {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalMillis / s.Runs
}

// StatsStore records per-path run counts, error counts, and durations. The
// memory store serves a single process; the Redis store shares counters
// between processes.
type StatsStore interface {
	// RecordRun adds one run for the path. Failed runs also count as errors.
	RecordRun(ctx context.Context, path string, elapsed time.Duration, success bool) error
	// PathStats returns the accumulated stats for the path.
	PathStats(ctx context.Context, path string) (PathStats, error)
	// Reset clears all recorded stats.
	Reset(ctx context.Context) error
}

// MemoryStats is an in-process StatsStore.
type MemoryStats struct {
	mu     sync.Mutex
	byPath map[string]PathStats
}

// NewMemoryStats returns an empty in-process store.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{byPath: make(map[string]PathStats)}
}

func (m *MemoryStats) RecordRun(_ context.Context, path string, elapsed time.Duration, success bool) error {
	if path == "" {
		return fmt.Errorf("stats: path is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.byPath[path]
	s.Runs++
	s.TotalMillis += elapsed.Milliseconds()
	if !success {
		s.Errors++
	}
	m.byPath[path] = s
	return nil
}

func (m *MemoryStats) PathStats(_ context.Context, path string) (PathStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPath[path], nil
}

func (m *MemoryStats) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPath = make(map[string]PathStats)
	return nil
}
