package writer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
)

// ErrFormatterUnavailable indicates the external formatter binary could
// not be found. Callers fall back to unformatted output.
var ErrFormatterUnavailable = errors.New("zerogen: formatter unavailable")

// DefaultPrettierCommand formats every file under the target directory in
// one invocation. The 1-to-N batching is deliberate: prettier startup
// dominates its runtime, so the run pays it once per flush, not per file.
const DefaultPrettierCommand = "npx prettier --write ."

// DefaultPrettierTimeout bounds the external call. A hung formatter must
// not stall the whole run indefinitely.
const DefaultPrettierTimeout = 2 * time.Minute

// PrettierRunner invokes the configured formatter command over a
// directory of generated files.
type PrettierRunner struct {
	argv    []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewPrettierRunner parses the configured command line. An empty command
// selects DefaultPrettierCommand; a non-positive timeout selects
// DefaultPrettierTimeout.
func NewPrettierRunner(command string, timeout time.Duration, logger *zap.Logger) (*PrettierRunner, error) {
	if command == "" {
		command = DefaultPrettierCommand
	}
	if timeout <= 0 {
		timeout = DefaultPrettierTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing formatter command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("formatter command %q is empty", command)
	}

	return &PrettierRunner{argv: argv, timeout: timeout, logger: logger}, nil
}

// FormatDir runs the formatter once with dir as its working directory,
// blocking until it finishes, fails, or the timeout expires.
func (p *PrettierRunner) FormatDir(ctx context.Context, dir string) error {
	if _, err := exec.LookPath(p.argv[0]); err != nil {
		return fmt.Errorf("%w: %s not found", ErrFormatterUnavailable, p.argv[0])
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("formatter timed out after %s", p.timeout)
		}
		return fmt.Errorf("formatter failed: %w: %s", err, string(out))
	}

	p.logger.Debug("formatted batch directory",
		zap.String("dir", dir),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
