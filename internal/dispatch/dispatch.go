// Package dispatch wires a resolved scenario through the python environment,
// the setup.py build step, the subprocess runner and the history store. Every
// command-line surface (the bare token form, run, watch, the terminal UI)
// goes through the same Dispatcher so they cannot drift apart.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pyrstest/internal/config"
	"pyrstest/internal/history"
	"pyrstest/internal/pyenv"
	"pyrstest/internal/runner"
	"pyrstest/internal/scenario"
)

// Dispatcher executes scenarios from one profile against one workspace.
type Dispatcher struct {
	Config    *config.Config
	Workspace string
	Profile   *scenario.Profile
	Runner    *runner.Runner

	// History may be nil when recording is disabled.
	History *history.Store

	// Out and ErrOut receive the scenario description and the live
	// subprocess output. They default to the process streams.
	Out    io.Writer
	ErrOut io.Writer

	log *zap.Logger
}

// Options modify a single dispatch.
type Options struct {
	// SkipBuild skips the setup.py build step.
	SkipBuild bool

	// DryRun prints what would run without executing anything.
	DryRun bool

	// NoHistory suppresses recording for this dispatch.
	NoHistory bool

	// Timeout overrides the configured scenario timeout when positive.
	Timeout time.Duration
}

// Outcome reports what one dispatch did.
type Outcome struct {
	Token    string
	Scenario *scenario.Scenario

	// Matched is false when the token selected no branch. An unmatched
	// token is not an error: no action occurs and the exit code is 0.
	Matched bool

	// Build is the build step result, nil when skipped.
	Build *runner.Result

	// Run is the scenario subprocess result, nil for no-op scenarios,
	// unmatched tokens, dry runs and build failures.
	Run *runner.Result

	// ExitCode is what the harness process should exit with: the child's
	// own status mirrored through, 124 for a timeout kill, 1 for an
	// infrastructure failure, 0 otherwise.
	ExitCode int
}

// New creates a Dispatcher writing to the process streams.
func New(cfg *config.Config, workspace string, prof *scenario.Profile, run *runner.Runner, hist *history.Store, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		Config:    cfg,
		Workspace: workspace,
		Profile:   prof,
		Runner:    run,
		History:   hist,
		Out:       os.Stdout,
		ErrOut:    os.Stderr,
		log:       log,
	}
}

// Build runs python setup.py build in the workspace.
func (d *Dispatcher) Build(ctx context.Context) (*runner.Result, error) {
	python, err := pyenv.ResolvePython(d.Config.Python.Binary)
	if err != nil {
		return nil, err
	}
	return d.runBuild(ctx, python, pyenv.Environ(d.Config))
}

func (d *Dispatcher) runBuild(ctx context.Context, python string, env []string) (*runner.Result, error) {
	cmd := runner.Command{
		Binary:  python,
		Args:    []string{d.Config.Build.SetupScript, "build"},
		Dir:     d.Workspace,
		Env:     env,
		Timeout: d.Config.GetBuildTimeout(),
		Stdout:  d.Out,
		Stderr:  d.ErrOut,
	}
	d.log.Info("building project", zap.String("command", cmd.String()))
	return d.Runner.Run(ctx, cmd)
}

// Dispatch resolves token against the profile and, on a match, prints the
// scenario summary, builds the project and runs the bound command line. An
// unrecognized token produces no action and no error.
func (d *Dispatcher) Dispatch(ctx context.Context, token string, opts Options) (*Outcome, error) {
	out := &Outcome{Token: token}

	s, ok := d.Profile.Resolve(token)
	if !ok {
		d.log.Debug("token matched no scenario",
			zap.String("token", token),
			zap.String("profile", d.Profile.Name))
		return out, nil
	}
	out.Matched = true
	out.Scenario = s

	fmt.Fprintln(d.Out, s.Summary)

	python, err := pyenv.ResolvePython(d.Config.Python.Binary)
	if err != nil {
		out.ExitCode = 1
		return out, err
	}
	env := pyenv.Environ(d.Config)

	if opts.DryRun {
		d.printDryRun(s, python)
		return out, nil
	}

	if !opts.SkipBuild {
		build, err := d.runBuild(ctx, python, env)
		if err != nil {
			out.ExitCode = 1
			return out, err
		}
		out.Build = build
		if !build.Passed() {
			out.ExitCode = ExitCodeFor(build)
			d.log.Error("build failed, scenario not dispatched",
				zap.String("token", token),
				zap.Int("exit_code", out.ExitCode))
			return out, nil
		}
	}

	if s.NoOp {
		d.log.Info("scenario has no command bound",
			zap.String("token", token),
			zap.String("code", s.Code))
		d.record(out, nil, opts)
		return out, nil
	}

	argv := s.CommandLine(python)
	cmd := runner.Command{
		Binary:  argv[0],
		Args:    argv[1:],
		Dir:     d.Workspace,
		Env:     env,
		Timeout: opts.Timeout,
		Stdout:  d.Out,
		Stderr:  d.ErrOut,
	}

	d.log.Info("dispatching scenario",
		zap.String("token", token),
		zap.String("code", s.Code),
		zap.String("command", cmd.String()))

	res, err := d.Runner.Run(ctx, cmd)
	if err != nil {
		out.ExitCode = 1
		return out, err
	}
	out.Run = res
	out.ExitCode = ExitCodeFor(res)

	d.record(out, res, opts)
	return out, nil
}

func (d *Dispatcher) printDryRun(s *scenario.Scenario, python string) {
	fmt.Fprintf(d.Out, "PYTHONPATH=%s\n", pyenv.NewSearchPath(d.Config).String())
	fmt.Fprintf(d.Out, "build: %s %s build\n", python, d.Config.Build.SetupScript)
	if s.NoOp {
		fmt.Fprintln(d.Out, "run: (no command bound)")
		return
	}
	fmt.Fprintln(d.Out, "run: "+runner.Command{
		Binary: python,
		Args:   append([]string{s.Script}, s.Args...),
	}.String())
}

// record persists the dispatch outcome. Failures are logged and swallowed; a
// broken history database must never change a run's result.
func (d *Dispatcher) record(out *Outcome, res *runner.Result, opts Options) {
	if d.History == nil || opts.NoHistory {
		return
	}

	run := history.Run{
		Profile:      d.Profile.Name,
		Token:        out.Token,
		Code:         out.Scenario.Code,
		Summary:      out.Scenario.Summary,
		BuildSkipped: opts.SkipBuild,
		NoOp:         out.Scenario.NoOp,
		StartedAt:    time.Now(),
	}
	if argv := out.Scenario.CommandLine(d.Config.Python.Binary); argv != nil {
		run.CommandLine = runner.Command{Binary: argv[0], Args: argv[1:]}.String()
	}
	if res != nil {
		keep := d.Config.GetCaptureBytes()
		run.RunID = res.RunID
		run.ExitCode = res.ExitCode
		run.Killed = res.Killed
		run.KillReason = res.KillReason
		run.Error = res.Error
		run.DurationMs = res.Duration.Milliseconds()
		run.StartedAt = res.StartedAt
		run.StdoutTail = clipTail(res.Stdout, keep)
		run.StderrTail = clipTail(res.Stderr, keep)
	} else {
		run.RunID = uuid.NewString()
	}

	if err := d.History.Record(run); err != nil {
		d.log.Warn("failed to record run history", zap.Error(err))
	}
}

// ExitCodeFor maps a runner result to the harness exit status: the child's
// own status when it ran, 124 for a kill, 1 for an infrastructure failure.
func ExitCodeFor(res *runner.Result) int {
	switch {
	case res == nil:
		return 0
	case !res.Ran():
		return 1
	case res.Killed:
		return 124
	case res.ExitCode >= 0:
		return res.ExitCode
	default:
		return 1
	}
}

// clipTail keeps the last max bytes of s.
func clipTail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
