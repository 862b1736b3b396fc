package runner

import (
	"io"
	"strings"
	"time"
)

// Command describes one subprocess invocation. The environment is always
// passed in explicitly; the runner never falls back to os.Environ.
type Command struct {
	Binary string
	Args   []string

	// Dir is the working directory, usually the workspace root.
	Dir string

	// Env is the complete subprocess environment.
	Env []string

	// Stdin, when non-empty, is fed to the process.
	Stdin string

	// Timeout overrides the runner default when positive.
	Timeout time.Duration

	// Stdout and Stderr, when set, receive the live output in addition to
	// the capped capture on the Result.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for display and logging.
func (c Command) String() string {
	return strings.Join(append([]string{c.Binary}, c.Args...), " ")
}

// Result describes one finished (or failed to start) subprocess.
type Result struct {
	// RunID identifies this invocation in logs and the history store.
	RunID string

	// ExitCode is the child's exit status, or -1 if it never exited
	// normally (killed, or never started).
	ExitCode int

	Stdout string
	Stderr string

	Duration   time.Duration
	StartedAt  time.Time
	FinishedAt time.Time

	// Killed is set when the process was stopped by timeout or cancellation.
	Killed     bool
	KillReason string

	// Truncated is set when the capture cap discarded output. The live
	// Stdout/Stderr writers still receive everything.
	Truncated      bool
	TruncatedBytes int64

	// Error holds an infrastructure failure such as a missing binary. A
	// non-zero child exit is not an infrastructure failure.
	Error string
}

// Ran reports whether the process actually started and was reaped.
func (r *Result) Ran() bool {
	return r.Error == ""
}

// Passed reports whether the process ran to completion with exit status 0.
func (r *Result) Passed() bool {
	return r.Ran() && !r.Killed && r.ExitCode == 0
}

// Output returns stdout and stderr joined for display.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Config holds runner defaults applied to commands that do not set their own.
type Config struct {
	DefaultTimeout time.Duration
	MaxOutputBytes int64
}

// DefaultConfig returns the runner defaults. Reductions against real runs can
// take a while, so the timeout is generous.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Minute,
		MaxOutputBytes: 10 * 1024 * 1024,
	}
}
