// Package doctor inspects the workspace and reports whether a dispatch is
// likely to succeed before any Python process is started. Checks that would
// stop the harness itself report fail; conditions the Python side tolerates
// or reports on its own terms stay at warn.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pyrstest/internal/config"
	"pyrstest/internal/pyenv"
	"pyrstest/internal/scenario"
)

// Status classifies a single check outcome.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Result is one completed check.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// Doctor runs environment checks against one workspace and profile.
type Doctor struct {
	cfg       *config.Config
	workspace string
	profile   *scenario.Profile
	log       *zap.Logger
}

// New creates a Doctor. A nil logger is replaced with a no-op logger.
func New(cfg *config.Config, workspace string, prof *scenario.Profile, log *zap.Logger) *Doctor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Doctor{cfg: cfg, workspace: workspace, profile: prof, log: log}
}

// Run executes all checks in parallel and returns them in a fixed order.
// The boolean is false when any check failed.
func (d *Doctor) Run(ctx context.Context) ([]Result, bool) {
	checks := []struct {
		name string
		fn   func() Result
	}{
		{"python interpreter", d.checkPython},
		{"build script", d.checkSetupScript},
		{"scenario scripts", d.checkScripts},
		{"scenario data files", d.checkDataFiles},
		{"mantid directories", d.checkMantidDirs},
		{"history database", d.checkHistoryPath},
	}

	results := make([]Result, len(checks))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, c := range checks {
		i, c := i, c
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				results[i] = Result{Name: c.name, Status: StatusWarn, Detail: "skipped: " + err.Error()}
				return nil
			}
			res := c.fn()
			res.Name = c.name
			results[i] = res
			return nil
		})
	}
	// Checks report through their Result, never through an error.
	_ = eg.Wait()

	healthy := true
	for _, r := range results {
		d.log.Debug("doctor check complete",
			zap.String("check", r.Name),
			zap.String("status", string(r.Status)))
		if r.Status == StatusFail {
			healthy = false
		}
	}
	return results, healthy
}

func (d *Doctor) checkPython() Result {
	resolved, err := pyenv.ResolvePython(d.cfg.Python.Binary)
	if err != nil {
		return Result{Status: StatusFail, Detail: err.Error()}
	}
	return Result{Status: StatusOK, Detail: resolved}
}

func (d *Doctor) checkSetupScript() Result {
	path := filepath.Join(d.workspace, d.cfg.Build.SetupScript)
	if _, err := os.Stat(path); err != nil {
		return Result{
			Status: StatusFail,
			Detail: fmt.Sprintf("%s not found, run pyrstest from the repository root", d.cfg.Build.SetupScript),
		}
	}
	return Result{Status: StatusOK, Detail: path}
}

func (d *Doctor) checkScripts() Result {
	seen := make(map[string]bool)
	var missing []string
	for _, s := range d.profile.Scenarios {
		if s.NoOp || s.Script == "" || seen[s.Script] {
			continue
		}
		seen[s.Script] = true
		if _, err := os.Stat(filepath.Join(d.workspace, s.Script)); err != nil {
			missing = append(missing, s.Script)
		}
	}
	if len(missing) > 0 {
		return Result{Status: StatusFail, Detail: "missing: " + strings.Join(missing, ", ")}
	}
	return Result{Status: StatusOK, Detail: fmt.Sprintf("%d scripts present", len(seen))}
}

// checkDataFiles warns rather than fails: a missing data file surfaces as a
// Python-side error in the scenario itself, the dispatch machinery is fine.
func (d *Doctor) checkDataFiles() Result {
	seen := make(map[string]bool)
	var missing []string
	for _, s := range d.profile.Scenarios {
		for _, f := range s.DataFiles() {
			if seen[f] {
				continue
			}
			seen[f] = true
			if _, err := os.Stat(filepath.Join(d.workspace, f)); err != nil {
				missing = append(missing, f)
			}
		}
	}
	if len(missing) > 0 {
		return Result{
			Status: StatusWarn,
			Detail: fmt.Sprintf("%d of %d missing: %s", len(missing), len(seen), strings.Join(missing, ", ")),
		}
	}
	return Result{Status: StatusOK, Detail: fmt.Sprintf("%d files present", len(seen))}
}

// checkMantidDirs warns at most: the three install locations are
// platform-specific and at most one can exist on a given host. The search
// path keeps the absent ones regardless.
func (d *Doctor) checkMantidDirs() Result {
	dirs := d.cfg.Mantid.Dirs()
	present := 0
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			present++
		}
	}
	if present == 0 {
		return Result{Status: StatusWarn, Detail: "no Mantid build directory exists on this host"}
	}
	return Result{Status: StatusOK, Detail: fmt.Sprintf("%d of %d directories exist", present, len(dirs))}
}

func (d *Doctor) checkHistoryPath() Result {
	if !d.cfg.History.Enabled {
		return Result{Status: StatusOK, Detail: "disabled"}
	}
	dbPath := d.cfg.GetHistoryPath(d.workspace)
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Result{Status: StatusWarn, Detail: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Status: StatusWarn, Detail: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	probe.Close()
	os.Remove(probe.Name())
	return Result{Status: StatusOK, Detail: dbPath}
}
