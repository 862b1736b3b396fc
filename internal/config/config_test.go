package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearHarnessEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MANTIDMACPATH", "MANTIDLOCALPATH", "MANTIDSNSDEBUGPATH",
		"PYRSTEST_PYTHON", "PYRSTEST_PROFILE", "PYRSTEST_HISTORY_DB",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "next", cfg.Profile)
	assert.Equal(t, "python", cfg.Python.Binary)
	assert.Equal(t, "setup.py", cfg.Build.SetupScript)
	assert.Equal(t, filepath.Join("build", "lib"), cfg.Build.OutputDir)

	assert.Equal(t, []string{
		"/Users/hb2b/MantidBuild/debug/bin",
		"/home/hb2b/Mantid_Project/builds/debug/bin",
		"/SNS/users/hb2b/Mantid_Project/builds/debug-master/bin",
	}, cfg.Mantid.Dirs())

	assert.True(t, cfg.History.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearHarnessEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearHarnessEnv(t)

	path := filepath.Join(t.TempDir(), DefaultConfigName)
	data := []byte("python:\n  binary: python3\nprofile: legacy\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "python3", cfg.Python.Binary)
	assert.Equal(t, "legacy", cfg.Profile)
	// Untouched sections keep their defaults.
	assert.Equal(t, filepath.Join("build", "lib"), cfg.Build.OutputDir)
	assert.Equal(t, "/Users/hb2b/MantidBuild/debug/bin", cfg.Mantid.MacPath)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigName)
	require.NoError(t, os.WriteFile(path, []byte("python: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearHarnessEnv(t)

	cfg := DefaultConfig()
	cfg.Profile = "legacy"
	cfg.Python.Binary = "/opt/mantid/bin/python"
	cfg.Build.Timeout = "90s"
	cfg.Watch.Dirs = []string{"pyrs"}

	path := filepath.Join(t.TempDir(), "nested", DefaultConfigName)
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDurationGetters(t *testing.T) {
	t.Run("defaults when unparseable", func(t *testing.T) {
		cfg := &Config{}
		assert.Equal(t, 5*time.Minute, cfg.GetBuildTimeout())
		assert.Equal(t, 30*time.Minute, cfg.GetExecutionTimeout())
		assert.Equal(t, 500*time.Millisecond, cfg.GetWatchDebounce())
		assert.Equal(t, int64(10*1024*1024), cfg.GetMaxOutputBytes())
		assert.Equal(t, 65536, cfg.GetCaptureBytes())
	})

	t.Run("parsed when valid", func(t *testing.T) {
		cfg := &Config{
			Build:     BuildConfig{Timeout: "90s"},
			Execution: ExecutionConfig{DefaultTimeout: "2h", MaxOutputKB: 64},
			Watch:     WatchConfig{Debounce: "250ms"},
			History:   HistoryConfig{CaptureBytes: 1024},
		}
		assert.Equal(t, 90*time.Second, cfg.GetBuildTimeout())
		assert.Equal(t, 2*time.Hour, cfg.GetExecutionTimeout())
		assert.Equal(t, 250*time.Millisecond, cfg.GetWatchDebounce())
		assert.Equal(t, int64(64*1024), cfg.GetMaxOutputBytes())
		assert.Equal(t, 1024, cfg.GetCaptureBytes())
	})
}

func TestValidate(t *testing.T) {
	t.Run("rejects empty python binary", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Python.Binary = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects bad duration", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Execution.DefaultTimeout = "soon"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execution.default_timeout")
	})

	t.Run("empty durations fall back instead of failing", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Build.Timeout = ""
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, 5*time.Minute, cfg.GetBuildTimeout())
	})
}
