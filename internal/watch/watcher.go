// Package watch regenerates models when their inputs change: the schema
// snapshot, the configuration file, and the template override directory.
// A websocket reload server tells connected frontend dev clients when
// fresh models land.
package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for the file system to
// settle before regenerating.
const DefaultDebounce = 250 * time.Millisecond

// WatcherConfig names the inputs to watch.
type WatcherConfig struct {
	// Files are exact paths to watch, typically the schema snapshot and
	// the configuration file.
	Files []string
	// Dirs are directories whose matching files are watched, typically
	// the template override directory.
	Dirs []string
	// Exts filters events under Dirs, e.g. ".tmpl". Empty accepts all.
	Exts []string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// OnChange receives the settled set of changed paths.
	OnChange func(files []string) error
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// FileWatcher monitors the generation inputs and triggers a debounced
// callback.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	files     map[string]struct{}
	dirs      []string
	exts      map[string]struct{}
	onChange  func([]string) error
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewFileWatcher builds a watcher, it starts on Start.
func NewFileWatcher(cfg WatcherConfig) (*FileWatcher, error) {
	if len(cfg.Files) == 0 && len(cfg.Dirs) == 0 {
		return nil, fmt.Errorf("watch: nothing to watch")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("watch: an OnChange callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounce),
		files:     make(map[string]struct{}, len(cfg.Files)),
		exts:      make(map[string]struct{}, len(cfg.Exts)),
		onChange:  cfg.OnChange,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
	for _, f := range cfg.Files {
		fw.files[filepath.Clean(f)] = struct{}{}
	}
	for _, d := range cfg.Dirs {
		fw.dirs = append(fw.dirs, filepath.Clean(d))
	}
	for _, ext := range cfg.Exts {
		fw.exts[ext] = struct{}{}
	}

	fw.debouncer.SetCallback(func(files []string) {
		if err := fw.onChange(files); err != nil {
			fw.logger.Error("handling input changes failed", zap.Error(err))
		}
	})
	return fw, nil
}

// Start registers the watch targets and begins the event loop. Watching
// the parent directory of each file catches editors that replace instead
// of rewrite.
func (fw *FileWatcher) Start() error {
	watched := make(map[string]struct{})
	for f := range fw.files {
		watched[filepath.Dir(f)] = struct{}{}
	}
	for _, d := range fw.dirs {
		watched[d] = struct{}{}
	}

	for dir := range watched {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fw.logger.Info("watching directory", zap.String("dir", dir))
	}

	fw.wg.Add(1)
	go fw.watch()
	return nil
}

// Stop halts the event loop and releases the watcher.
func (fw *FileWatcher) Stop() error {
	select {
	case <-fw.stopChan:
		return nil
	default:
		close(fw.stopChan)
	}

	fw.wg.Wait()
	fw.debouncer.Stop()
	return fw.watcher.Close()
}

func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if fw.relevant(event.Name) {
				fw.logger.Debug("input changed", zap.String("path", event.Name))
				fw.debouncer.Add(event.Name)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watcher error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}

// relevant reports whether an event path is one of the watched inputs.
func (fw *FileWatcher) relevant(path string) bool {
	clean := filepath.Clean(path)
	base := filepath.Base(clean)
	if strings.HasPrefix(base, ".") {
		return false
	}

	if _, ok := fw.files[clean]; ok {
		return true
	}

	for _, dir := range fw.dirs {
		if filepath.Dir(clean) != dir {
			continue
		}
		if len(fw.exts) == 0 {
			return true
		}
		if _, ok := fw.exts[filepath.Ext(clean)]; ok {
			return true
		}
	}
	return false
}

// Debouncer collects changed paths and fires one callback after the
// changes settle.
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopped  bool
}

// NewDebouncer creates a debouncer with the given settle window.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
	}
}

// SetCallback sets the function invoked with the settled set of paths.
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Add records a changed path and restarts the settle window.
func (d *Debouncer) Add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.files[file] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if d.stopped || len(d.files) == 0 {
		d.mutex.Unlock()
		return
	}
	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	d.files = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	if callback != nil {
		callback(files)
	}
}

// Stop cancels any pending flush.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
