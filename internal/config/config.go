// Package config loads the harness configuration from .pyrstest.yaml with
// environment overrides layered on top. Every field has a working default so
// a bare checkout behaves exactly like the old shell harness did.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the config file looked up in the workspace root.
const DefaultConfigName = ".pyrstest.yaml"

// Config holds all pyrstest configuration.
type Config struct {
	// Profile selects the scenario table, "next" or "legacy".
	Profile string `yaml:"profile"`

	// Python interpreter selection
	Python PythonConfig `yaml:"python"`

	// Mantid build directories appended to the python search path
	Mantid MantidConfig `yaml:"mantid"`

	// setup.py build step
	Build BuildConfig `yaml:"build"`

	// Scenario subprocess execution
	Execution ExecutionConfig `yaml:"execution"`

	// Run history database
	History HistoryConfig `yaml:"history"`

	// Source watcher
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PythonConfig selects the interpreter used for the build step and every
// scenario.
type PythonConfig struct {
	Binary string `yaml:"binary"`
}

// MantidConfig holds the fixed per-platform Mantid build directories. All
// three are always included in the python search path, in this order, whether
// or not they exist on the current host.
type MantidConfig struct {
	MacPath      string `yaml:"mac_path"`
	LocalPath    string `yaml:"local_path"`
	SNSDebugPath string `yaml:"sns_debug_path"`
}

// Dirs returns the mac, local and SNS debug paths in search order.
func (m MantidConfig) Dirs() []string {
	return []string{m.MacPath, m.LocalPath, m.SNSDebugPath}
}

// BuildConfig configures the setup.py build step that runs before dispatch.
type BuildConfig struct {
	SetupScript string `yaml:"setup_script"`
	OutputDir   string `yaml:"output_dir"`
	Timeout     string `yaml:"timeout"`
}

// ExecutionConfig configures how scenario subprocesses are run.
type ExecutionConfig struct {
	// Default timeout for scenario commands
	DefaultTimeout string `yaml:"default_timeout"`

	// Environment variables to pass through to subprocesses
	AllowedEnvVars []string `yaml:"allowed_env_vars"`

	// Cap on captured stdout/stderr per stream
	MaxOutputKB int `yaml:"max_output_kb"`
}

// HistoryConfig configures the local run history database.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`

	// Bytes of stdout/stderr kept per recorded run
	CaptureBytes int `yaml:"capture_bytes"`
}

// WatchConfig configures the source watcher behind the watch command.
type WatchConfig struct {
	Dirs     []string `yaml:"dirs"`
	Debounce string   `yaml:"debounce"`
}

// LoggingConfig configures logging. The --verbose flag overrides Level.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Profile: "next",

		Python: PythonConfig{
			Binary: "python",
		},

		Mantid: MantidConfig{
			MacPath:      "/Users/hb2b/MantidBuild/debug/bin",
			LocalPath:    "/home/hb2b/Mantid_Project/builds/debug/bin",
			SNSDebugPath: "/SNS/users/hb2b/Mantid_Project/builds/debug-master/bin",
		},

		Build: BuildConfig{
			SetupScript: "setup.py",
			OutputDir:   filepath.Join("build", "lib"),
			Timeout:     "5m",
		},

		Execution: ExecutionConfig{
			DefaultTimeout: "30m",
			AllowedEnvVars: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "DISPLAY"},
			MaxOutputKB:    10240,
		},

		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(".pyrstest", "history.db"),
			CaptureBytes: 65536,
		},

		Watch: WatchConfig{
			Dirs:     []string{"pyrs", "scripts", "tests"},
			Debounce: "500ms",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an error;
// defaults are used. Environment overrides are applied in both cases so the
// MANTID*PATH variables keep working without a config file, as they did under
// the shell harness.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultConfigName
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Mantid directories, honored since the shell harness days
	if v := os.Getenv("MANTIDMACPATH"); v != "" {
		c.Mantid.MacPath = v
	}
	if v := os.Getenv("MANTIDLOCALPATH"); v != "" {
		c.Mantid.LocalPath = v
	}
	if v := os.Getenv("MANTIDSNSDEBUGPATH"); v != "" {
		c.Mantid.SNSDebugPath = v
	}

	if v := os.Getenv("PYRSTEST_PYTHON"); v != "" {
		c.Python.Binary = v
	}
	if v := os.Getenv("PYRSTEST_PROFILE"); v != "" {
		c.Profile = v
	}
	if v := os.Getenv("PYRSTEST_HISTORY_DB"); v != "" {
		c.History.DatabasePath = v
	}
}

// GetBuildTimeout returns the build timeout as a duration.
func (c *Config) GetBuildTimeout() time.Duration {
	d, err := time.ParseDuration(c.Build.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// GetExecutionTimeout returns the default scenario timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.DefaultTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// GetWatchDebounce returns the watcher debounce window as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetMaxOutputBytes returns the per-stream subprocess capture cap in bytes.
func (c *Config) GetMaxOutputBytes() int64 {
	if c.Execution.MaxOutputKB > 0 {
		return int64(c.Execution.MaxOutputKB) * 1024
	}
	return 10 * 1024 * 1024
}

// GetCaptureBytes returns how much output the history store keeps per run.
func (c *Config) GetCaptureBytes() int {
	if c.History.CaptureBytes > 0 {
		return c.History.CaptureBytes
	}
	return 65536
}

// GetHistoryPath resolves the history database path. Relative paths are
// anchored at the workspace so every invocation from the repository root
// shares one database.
func (c *Config) GetHistoryPath(workspace string) string {
	path := c.History.DatabasePath
	if path == "" {
		path = filepath.Join(".pyrstest", "history.db")
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

// Validate checks the parts of the configuration the harness depends on.
func (c *Config) Validate() error {
	if c.Python.Binary == "" {
		return fmt.Errorf("python binary not configured")
	}
	if c.Build.SetupScript == "" {
		return fmt.Errorf("build setup script not configured")
	}
	if c.Build.OutputDir == "" {
		return fmt.Errorf("build output directory not configured")
	}
	for name, v := range map[string]string{
		"build.timeout":             c.Build.Timeout,
		"execution.default_timeout": c.Execution.DefaultTimeout,
		"watch.debounce":            c.Watch.Debounce,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
