// Package hook runs the user's post-download executable.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/bryan-buckman/cringecast/internal/logging"
)

var commandContext = exec.CommandContext

// Runner invokes a hook executable with the downloaded file as its only
// argument.
type Runner struct {
	logger *slog.Logger
}

// New creates a Runner that logs through logger.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{logger: logger}
}

// Run executes executable with path and waits for it. The returned error
// describes a failed or non-zero run; callers treat it as a warning.
func (r *Runner) Run(ctx context.Context, executable, path string) error {
	if executable == "" {
		return nil
	}
	cmd := commandContext(ctx, executable, path) //nolint:gosec
	output, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(output))
	if err != nil {
		return fmt.Errorf("download hook %s: %w: %s", executable, err, trimmed)
	}
	if trimmed != "" {
		r.logger.Debug("download hook output", "hook", executable, "file", path, "output", trimmed)
	}
	return nil
}
