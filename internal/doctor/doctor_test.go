package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyrstest/internal/config"
	"pyrstest/internal/scenario"
)

func touch(t *testing.T, root string, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("# placeholder\n"), 0644))
}

func testProfile() *scenario.Profile {
	return &scenario.Profile{
		Name: "test",
		Scenarios: []scenario.Scenario{
			{Code: "1", Summary: "first", Script: "scripts/first.py", Args: []string{"data/first.h5"}},
			{Code: "2", Summary: "second", Script: "scripts/second.py", Args: []string{"--mask=data/mask.xml"}},
			{Code: "3", Summary: "disabled", NoOp: true},
		},
	}
}

// healthyWorkspace builds a workspace where every check passes.
func healthyWorkspace(t *testing.T) (*config.Config, string) {
	t.Helper()
	ws := t.TempDir()
	touch(t, ws, "setup.py")
	touch(t, ws, "scripts/first.py")
	touch(t, ws, "scripts/second.py")
	touch(t, ws, "data/first.h5")
	touch(t, ws, "data/mask.xml")

	pythonDir := t.TempDir()
	touch(t, pythonDir, "python")

	cfg := config.DefaultConfig()
	cfg.Python.Binary = filepath.Join(pythonDir, "python")
	cfg.Mantid.MacPath = t.TempDir()
	cfg.Mantid.LocalPath = t.TempDir()
	cfg.Mantid.SNSDebugPath = t.TempDir()
	return cfg, ws
}

func statusOf(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no check named %q in %v", name, results)
	return Result{}
}

func TestRunAllHealthy(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	d := New(cfg, ws, testProfile(), nil)

	results, healthy := d.Run(context.Background())
	assert.True(t, healthy)
	require.Len(t, results, 6)

	wantOrder := []string{
		"python interpreter",
		"build script",
		"scenario scripts",
		"scenario data files",
		"mantid directories",
		"history database",
	}
	for i, name := range wantOrder {
		assert.Equal(t, name, results[i].Name)
		assert.Equal(t, StatusOK, results[i].Status, "check %s: %s", name, results[i].Detail)
	}
}

func TestRunMissingPythonFails(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	cfg.Python.Binary = filepath.Join(t.TempDir(), "absent", "python")
	d := New(cfg, ws, testProfile(), nil)

	results, healthy := d.Run(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, StatusFail, statusOf(t, results, "python interpreter").Status)
}

func TestRunMissingSetupScriptFails(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(ws, "setup.py")))
	d := New(cfg, ws, testProfile(), nil)

	results, healthy := d.Run(context.Background())
	assert.False(t, healthy)
	res := statusOf(t, results, "build script")
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Detail, "setup.py")
}

func TestRunMissingScenarioScriptFails(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(ws, "scripts", "second.py")))
	d := New(cfg, ws, testProfile(), nil)

	results, healthy := d.Run(context.Background())
	assert.False(t, healthy)
	res := statusOf(t, results, "scenario scripts")
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Detail, "scripts/second.py")
	assert.NotContains(t, res.Detail, "scripts/first.py")
}

func TestRunMissingDataFileWarns(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(ws, "data", "mask.xml")))
	d := New(cfg, ws, testProfile(), nil)

	results, healthy := d.Run(context.Background())
	assert.True(t, healthy, "missing data is a scenario problem, not a harness problem")
	res := statusOf(t, results, "scenario data files")
	assert.Equal(t, StatusWarn, res.Status)
	assert.Contains(t, res.Detail, "data/mask.xml")
}

func TestRunMissingMantidDirsWarn(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	cfg.Mantid.MacPath = "/Users/hb2b/MantidBuild/debug/bin"
	cfg.Mantid.LocalPath = "/home/hb2b/Mantid_Project/builds/debug/bin"
	cfg.Mantid.SNSDebugPath = "/SNS/users/hb2b/Mantid_Project/builds/debug-master/bin"
	d := New(cfg, ws, testProfile(), nil)

	results, healthy := d.Run(context.Background())
	res := statusOf(t, results, "mantid directories")
	if res.Status == StatusOK {
		t.Skip("a real Mantid build directory exists on this host")
	}
	assert.True(t, healthy)
	assert.Equal(t, StatusWarn, res.Status)
}

func TestRunHistoryDisabled(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	cfg.History.Enabled = false
	d := New(cfg, ws, testProfile(), nil)

	results, healthy := d.Run(context.Background())
	assert.True(t, healthy)
	res := statusOf(t, results, "history database")
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "disabled", res.Detail)
}

func TestRunNoOpOnlyProfile(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	prof := &scenario.Profile{
		Name:      "empty",
		Scenarios: []scenario.Scenario{{Code: "3", Summary: "disabled", NoOp: true}},
	}
	d := New(cfg, ws, prof, nil)

	results, healthy := d.Run(context.Background())
	assert.True(t, healthy)
	assert.Equal(t, StatusOK, statusOf(t, results, "scenario scripts").Status)
	assert.Equal(t, StatusOK, statusOf(t, results, "scenario data files").Status)
}

func TestRunCanceledContextSkipsChecks(t *testing.T) {
	cfg, ws := healthyWorkspace(t)
	d := New(cfg, ws, testProfile(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, healthy := d.Run(ctx)
	assert.True(t, healthy, "skipped checks are warnings, not failures")
	for _, r := range results {
		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Detail, "skipped")
	}
}
