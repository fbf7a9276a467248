package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Spinner is a text spinner for operations without a known length, like
// live database introspection.
type Spinner struct {
	writer   io.Writer
	frames   []string
	interval time.Duration
	done     chan struct{}
	noColor  bool

	mu      sync.RWMutex
	message string
	active  bool
}

// SpinnerOptions configures a Spinner.
type SpinnerOptions struct {
	Message  string
	NoColor  bool
	Interval time.Duration // default 100ms
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a spinner.
func NewSpinner(w io.Writer, opts SpinnerOptions) *Spinner {
	interval := opts.Interval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}

	return &Spinner{
		writer:   w,
		message:  opts.Message,
		frames:   spinnerFrames,
		interval: interval,
		done:     make(chan struct{}),
		noColor:  opts.NoColor,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go s.animate()
}

// Stop halts the animation and clears the line. Safe to call twice.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.done <- struct{}{}
	fmt.Fprint(s.writer, "\r\033[K")
}

// Success stops the spinner and prints a success line.
func (s *Spinner) Success(message string) {
	s.Stop()
	green := color.New(color.FgGreen, color.Bold)
	if s.noColor {
		green.DisableColor()
	}
	green.Fprintf(s.writer, "✓ %s\n", message)
}

// Error stops the spinner and prints an error line.
func (s *Spinner) Error(message string) {
	s.Stop()
	red := color.New(color.FgRed, color.Bold)
	if s.noColor {
		red.DisableColor()
	}
	red.Fprintf(s.writer, "✗ %s\n", message)
}

// UpdateMessage changes the text next to the spinner.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

func (s *Spinner) animate() {
	frameIndex := 0
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cyan := color.New(color.FgCyan)
	if s.noColor {
		cyan.DisableColor()
	}

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			frame := s.frames[frameIndex]
			s.mu.RLock()
			msg := s.message
			s.mu.RUnlock()
			cyan.Fprintf(s.writer, "\r%s %s", frame, msg)
			frameIndex = (frameIndex + 1) % len(s.frames)
		}
	}
}

// ProgressBar is a determinate progress bar, used when walking a known set
// of tables or columns.
type ProgressBar struct {
	writer  io.Writer
	total   int
	current int
	width   int
	message string
	noColor bool
}

// ProgressBarOptions configures a ProgressBar.
type ProgressBarOptions struct {
	Total   int
	Width   int // default 40
	Message string
	NoColor bool
}

// NewProgressBar creates a progress bar.
func NewProgressBar(w io.Writer, opts ProgressBarOptions) *ProgressBar {
	width := opts.Width
	if width == 0 {
		width = 40
	}

	return &ProgressBar{
		writer:  w,
		total:   opts.Total,
		width:   width,
		message: opts.Message,
		noColor: opts.NoColor,
	}
}

// Add advances the bar by n, clamped to the total.
func (p *ProgressBar) Add(n int) {
	p.current += n
	if p.current > p.total {
		p.current = p.total
	}
	p.render()
}

// Finish fills the bar and moves to the next line.
func (p *ProgressBar) Finish() {
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// FinishWithMessage fills the bar and prints a success line.
func (p *ProgressBar) FinishWithMessage(message string) {
	p.Finish()
	green := color.New(color.FgGreen, color.Bold)
	if p.noColor {
		green.DisableColor()
	}
	green.Fprintf(p.writer, "✓ %s\n", message)
}

func (p *ProgressBar) render() {
	if p.total == 0 {
		return
	}

	percent := float64(p.current) / float64(p.total)
	filledWidth := int(float64(p.width) * percent)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		cyan.DisableColor()
		gray.DisableColor()
	}

	var bar strings.Builder
	bar.WriteString("[")
	cyan.Fprint(&bar, strings.Repeat("█", filledWidth))
	gray.Fprint(&bar, strings.Repeat("░", p.width-filledWidth))
	bar.WriteString("]")

	message := ""
	if p.message != "" {
		message = " " + p.message
	}

	fmt.Fprintf(p.writer, "\r%s %3d%%%s", bar.String(), int(percent*100), message)
}

// WithSpinner runs fn behind a spinner and prints the outcome line.
func WithSpinner(w io.Writer, message string, noColor bool, fn func() error) error {
	spinner := NewSpinner(w, SpinnerOptions{
		Message: message,
		NoColor: noColor,
	})
	spinner.Start()
	defer spinner.Stop()

	if err := fn(); err != nil {
		spinner.Error(fmt.Sprintf("%s failed", message))
		return err
	}

	spinner.Success(message)
	return nil
}
