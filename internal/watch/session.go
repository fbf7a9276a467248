package watch

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

// RegenerateFunc runs one generation pass. The CLI wires it to the
// migration router with the session's fixed options.
type RegenerateFunc func(ctx context.Context) (*generate.Result, error)

// SessionConfig wires a watch session.
type SessionConfig struct {
	// SnapshotPath is the schema snapshot to watch. Optional.
	SnapshotPath string
	// ConfigPath is the configuration file to watch. Optional.
	ConfigPath string
	// TemplateDir is the template override directory to watch. Optional.
	TemplateDir string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Regenerate runs one generation pass. Required.
	Regenerate RegenerateFunc
	// Reload broadcasts events to dev clients. Optional.
	Reload *ReloadServer
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Session runs generation whenever a watched input changes and tells
// connected clients what happened.
type Session struct {
	watcher *FileWatcher
	reload  *ReloadServer
	regen   RegenerateFunc
	logger  *zap.Logger

	// mu serializes generation runs; a change burst during a slow run
	// waits instead of overlapping.
	mu sync.Mutex
}

// NewSession builds a session watching the configured inputs.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Regenerate == nil {
		return nil, fmt.Errorf("watch: a regenerate function is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		reload: cfg.Reload,
		regen:  cfg.Regenerate,
		logger: logger,
	}

	var files []string
	if cfg.SnapshotPath != "" {
		files = append(files, cfg.SnapshotPath)
	}
	if cfg.ConfigPath != "" {
		files = append(files, cfg.ConfigPath)
	}
	var dirs, exts []string
	if cfg.TemplateDir != "" {
		dirs = append(dirs, cfg.TemplateDir)
		exts = append(exts, ".tmpl")
	}

	watcher, err := NewFileWatcher(WatcherConfig{
		Files:    files,
		Dirs:     dirs,
		Exts:     exts,
		Debounce: cfg.Debounce,
		OnChange: s.handleChanges,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	s.watcher = watcher
	return s, nil
}

// Start runs one initial generation, then watches. An initial failure is
// logged but keeps the session alive so a fix can regenerate.
func (s *Session) Start() error {
	s.logger.Info("running initial generation")
	if err := s.regenerate(); err != nil {
		s.logger.Warn("initial generation failed", zap.Error(err))
	}
	return s.watcher.Start()
}

// Stop halts the watcher. The reload server is closed by its owner.
func (s *Session) Stop() error {
	return s.watcher.Stop()
}

func (s *Session) handleChanges(files []string) error {
	sort.Strings(files)
	s.logger.Info("inputs changed", zap.Strings("files", files))
	if s.reload != nil {
		s.reload.NotifyRegenerating(files)
	}
	return s.regenerate()
}

func (s *Session) regenerate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.regen(context.Background())
	if err != nil {
		if s.reload != nil {
			s.reload.NotifyError(err.Error())
		}
		return err
	}

	if !res.Success {
		s.logger.Warn("regeneration finished with errors", zap.Strings("errors", res.Errors))
		if s.reload != nil {
			s.reload.NotifyError(strings.Join(res.Errors, "; "))
		}
		return nil
	}

	models := make([]string, 0, len(res.Models))
	for _, m := range res.Models {
		models = append(models, m.Model)
	}
	s.logger.Info("models regenerated",
		zap.Int("models", len(models)),
		zap.Int("files_written", res.Stats.FilesWritten),
		zap.Duration("elapsed", res.Stats.Elapsed),
	)
	if s.reload != nil {
		s.reload.NotifyModels(models, res.Stats.FilesWritten, res.Stats.Elapsed)
	}
	return nil
}
