// Package config loads process-wide configuration for the workflow engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DebugMode selects between the parallel sub-agent driver and the serial debug driver.
type DebugMode string

const (
	DebugModeParallel DebugMode = "parallel"
	DebugModeSerial   DebugMode = "serial"
)

// LogLevel specifies the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat specifies the log output format.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// PathsConfig holds path configuration.
type PathsConfig struct {
	WorkflowDir string `toml:"workflow_dir"`
	StateDir    string `toml:"state_dir"`
}

// ExecutorConfig holds the queue-based executor's resource budgets (spec §4.6, §4.5).
type ExecutorConfig struct {
	MaxServerDrainSteps int `toml:"max_server_drain_steps"` // default 10000, see ServerDrainBudgetExhausted
	MaxLoopIterations   int `toml:"max_loop_iterations"`    // default 100; validated only, the loop processors use processor.DefaultMaxLoopIterations
}

// DebugConfig holds serial-debug-driver settings (spec §6, AROMCP_WORKFLOW_DEBUG).
type DebugConfig struct {
	Mode DebugMode `toml:"mode"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
	File   string    `toml:"file"`
}

// Config is the main process configuration.
type Config struct {
	Version  string         `toml:"version"`
	Paths    PathsConfig    `toml:"paths"`
	Executor ExecutorConfig `toml:"executor"`
	Debug    DebugConfig    `toml:"debug"`
	Logging  LoggingConfig  `toml:"logging"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: "1",
		Paths: PathsConfig{
			WorkflowDir: ".aromcp/workflows",
			StateDir:    ".aromcp/state",
		},
		Executor: ExecutorConfig{
			MaxServerDrainSteps: 10000,
			MaxLoopIterations:   100,
		},
		Debug: DebugConfig{
			Mode: DebugModeParallel,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatJSON,
			File:   "",
		},
	}
}

// Load loads configuration from file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDebugEnv(cfg)
			return cfg, nil // Use defaults if no config file
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDebugEnv(cfg)
	return cfg, nil
}

// LoadFromDir loads configuration from the standard locations in a directory.
// Applies in order: defaults -> ~/.aromcp/config.toml -> .aromcp/config.toml -> environment.
// Later sources override earlier ones (project-level takes precedence over user-level).
func LoadFromDir(dir string) (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		globalConfig := filepath.Join(home, ".aromcp", "config.toml")
		if data, err := os.ReadFile(globalConfig); err == nil {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	projectConfig := filepath.Join(dir, ".aromcp", "config.toml")
	if data, err := os.ReadFile(projectConfig); err == nil {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing project config: %w", err)
		}
	}

	applyDebugEnv(cfg)
	return cfg, nil
}

// applyDebugEnv reads AROMCP_WORKFLOW_DEBUG once, per spec §6: any value other than
// "serial" (including unset) selects the parallel driver.
func applyDebugEnv(cfg *Config) {
	if os.Getenv("AROMCP_WORKFLOW_DEBUG") == "serial" {
		cfg.Debug.Mode = DebugModeSerial
	} else {
		cfg.Debug.Mode = DebugModeParallel
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}
	if c.Paths.WorkflowDir == "" {
		return fmt.Errorf("workflow_dir is required")
	}
	if c.Executor.MaxServerDrainSteps <= 0 {
		return fmt.Errorf("max_server_drain_steps must be positive")
	}
	if c.Executor.MaxLoopIterations <= 0 {
		return fmt.Errorf("max_loop_iterations must be positive")
	}
	return nil
}

// WorkflowDir returns the absolute workflow-definitions directory path.
func (c *Config) WorkflowDir(baseDir string) string {
	if filepath.IsAbs(c.Paths.WorkflowDir) {
		return c.Paths.WorkflowDir
	}
	return filepath.Join(baseDir, c.Paths.WorkflowDir)
}

// StateDir returns the absolute state directory path.
func (c *Config) StateDir(baseDir string) string {
	if filepath.IsAbs(c.Paths.StateDir) {
		return c.Paths.StateDir
	}
	return filepath.Join(baseDir, c.Paths.StateDir)
}

// LogFile returns the absolute log file path, or "" if logging to stderr only.
func (c *Config) LogFile(baseDir string) string {
	if c.Logging.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	return filepath.Join(baseDir, c.Logging.File)
}
