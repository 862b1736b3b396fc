// Package runner executes python subprocesses on the host with timeouts and
// capped output capture. It is deliberately dumb: callers hand it a complete
// command line and environment, and it reports what happened.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes commands directly on the host using os/exec.
type Runner struct {
	config Config
	log    *zap.Logger
}

// New creates a runner with the given defaults.
func New(log *zap.Logger, config Config) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = DefaultConfig().MaxOutputBytes
	}
	return &Runner{config: config, log: log}
}

// Validate checks whether a command can be executed.
func (r *Runner) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Run executes the command and blocks until it exits or the timeout fires.
// Infrastructure failures (binary missing, exec refused) are reported on the
// Result rather than as an error; the returned error is reserved for invalid
// commands.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if err := r.Validate(cmd); err != nil {
		return nil, err
	}

	timeout := r.config.DefaultTimeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	result := &Result{
		RunID:    uuid.NewString(),
		ExitCode: -1,
	}

	r.log.Debug("running command",
		zap.String("run_id", result.RunID),
		zap.String("command", cmd.String()),
		zap.String("dir", cmd.Dir),
		zap.Duration("timeout", timeout))

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = cmd.Env
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: r.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: r.config.MaxOutputBytes}

	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited
	if cmd.Stdout != nil {
		execCmd.Stdout = io.MultiWriter(cmd.Stdout, stdoutLimited)
	}
	if cmd.Stderr != nil {
		execCmd.Stderr = io.MultiWriter(cmd.Stderr, stderrLimited)
	}

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		r.log.Warn("command output truncated",
			zap.String("run_id", result.RunID),
			zap.Int64("discarded_bytes", result.TruncatedBytes))
	}

	switch {
	case err == nil:
		result.ExitCode = 0

	case execCtx.Err() == context.DeadlineExceeded:
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		r.log.Warn("command killed on timeout",
			zap.String("run_id", result.RunID),
			zap.String("command", cmd.String()),
			zap.Duration("timeout", timeout))

	case execCtx.Err() == context.Canceled:
		result.Killed = true
		result.KillReason = "canceled"
		r.log.Debug("command canceled",
			zap.String("run_id", result.RunID),
			zap.String("command", cmd.String()))

	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			// The child ran and returned non-zero. That is its business;
			// the harness just mirrors the status.
			result.ExitCode = exitErr.ExitCode()
			r.log.Debug("command exited non-zero",
				zap.String("run_id", result.RunID),
				zap.Int("exit_code", result.ExitCode))
		} else {
			result.Error = err.Error()
			r.log.Error("command failed to run",
				zap.String("run_id", result.RunID),
				zap.String("command", cmd.String()),
				zap.Error(err))
			return result, nil
		}
	}

	r.log.Debug("command finished",
		zap.String("run_id", result.RunID),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Int("stdout_bytes", len(result.Stdout)))

	return result, nil
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		// Report the original length to avoid short write errors upstream.
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
