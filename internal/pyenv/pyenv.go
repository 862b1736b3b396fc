// Package pyenv assembles the python environment shared by the build step and
// every dispatched scenario: the PYTHONPATH search order and the filtered
// variable pass-through for subprocesses.
package pyenv

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"pyrstest/internal/config"
)

// ErrPythonNotFound is returned when no usable interpreter can be resolved.
var ErrPythonNotFound = errors.New("python interpreter not found")

const pythonPathKey = "PYTHONPATH"

// SearchPath holds the ordered segments of the python module search path.
// The order is fixed: the local build output first, then the three Mantid
// directories, then whatever PYTHONPATH the process inherited. Directories
// are included whether or not they exist; missing ones are simply skipped by
// python itself.
type SearchPath struct {
	BuildLib  string
	Mantid    []string
	Inherited string
}

// NewSearchPath builds the search path from config plus the inherited
// PYTHONPATH of the current process.
func NewSearchPath(cfg *config.Config) SearchPath {
	return SearchPath{
		BuildLib:  cfg.Build.OutputDir,
		Mantid:    cfg.Mantid.Dirs(),
		Inherited: os.Getenv(pythonPathKey),
	}
}

// Segments returns the non-empty entries in search order. Empty entries are
// dropped: under the shell harness an unset PYTHONPATH left a trailing
// separator, which python reads as the current directory, and that was never
// intended.
func (p SearchPath) Segments() []string {
	sep := string(os.PathListSeparator)
	segs := make([]string, 0, len(p.Mantid)+2)
	if p.BuildLib != "" {
		segs = append(segs, p.BuildLib)
	}
	for _, d := range p.Mantid {
		if d != "" {
			segs = append(segs, d)
		}
	}
	for _, d := range strings.Split(p.Inherited, sep) {
		if d != "" {
			segs = append(segs, d)
		}
	}
	return segs
}

// String joins the segments with the platform list separator, producing the
// PYTHONPATH value handed to subprocesses.
func (p SearchPath) String() string {
	return strings.Join(p.Segments(), string(os.PathListSeparator))
}

// Environ returns the environment for python subprocesses: the configured
// allowlist passed through from the current process, plus PYTHONPATH set to
// the assembled search path. Nothing else leaks through.
func Environ(cfg *config.Config) []string {
	env := make([]string, 0, len(cfg.Execution.AllowedEnvVars)+1)
	for _, key := range cfg.Execution.AllowedEnvVars {
		if key == pythonPathKey {
			continue
		}
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	env = append(env, pythonPathKey+"="+NewSearchPath(cfg).String())
	return env
}

// ResolvePython resolves the configured interpreter to an invocable path.
// A binary containing a path separator is used as given; a bare name is
// looked up in PATH, with python3 tried as a fallback for the default name.
func ResolvePython(binary string) (string, error) {
	if binary == "" {
		return "", fmt.Errorf("%w: no binary configured", ErrPythonNotFound)
	}
	if strings.ContainsAny(binary, `/\`) {
		if _, err := os.Stat(binary); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrPythonNotFound, binary, err)
		}
		return binary, nil
	}
	if path, err := exec.LookPath(binary); err == nil {
		return path, nil
	}
	if binary == "python" {
		if path, err := exec.LookPath("python3"); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %q not in PATH", ErrPythonNotFound, binary)
}
