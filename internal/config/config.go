// Package config holds forge configuration: defaults, the optional
// .forge.yaml file, and environment overrides, applied in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects how formatting and linting behave.
type Mode string

const (
	// ModeApply writes formatting fixes and tolerates lint warnings.
	ModeApply Mode = "apply"

	// ModeStrict fails on formatting drift and treats lint warnings as
	// errors. The default in CI.
	ModeStrict Mode = "strict"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = ".forge.yaml"

// Config holds all forge configuration.
type Config struct {
	// Project settings
	Project ProjectConfig `yaml:"project"`

	// Toolchain binaries and bootstrap behavior
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// Command execution settings
	Execution ExecutionConfig `yaml:"execution"`

	// Formatting and linting behavior
	Mode Mode       `yaml:"mode"`
	Lint LintConfig `yaml:"lint"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`

	// Audit trail
	Audit AuditConfig `yaml:"audit"`
}

// ProjectConfig identifies what the targets operate on.
type ProjectConfig struct {
	// Name is used in listings and logs.
	Name string `yaml:"name"`

	// Packages is the package pattern most targets act on.
	Packages string `yaml:"packages"`

	// Main is the package executed by the run target.
	Main string `yaml:"main"`
}

// ToolchainConfig configures external tool discovery.
type ToolchainConfig struct {
	// Go is the go binary name or path.
	Go string `yaml:"go"`

	// Gofmt is the formatter binary.
	Gofmt string `yaml:"gofmt"`

	// Lint is the optional lint binary.
	Lint string `yaml:"lint"`

	// LintInstall is the module path@version used to install the lint
	// binary when bootstrap is enabled and it is missing.
	LintInstall string `yaml:"lint_install"`

	// Bootstrap enables installing missing tools before dispatch.
	Bootstrap bool `yaml:"bootstrap"`
}

// ExecutionConfig configures the shell runner.
type ExecutionConfig struct {
	// DefaultTimeout applies to commands without an explicit timeout.
	DefaultTimeout string `yaml:"default_timeout"`

	// WorkingDirectory is where commands run.
	WorkingDirectory string `yaml:"working_directory"`

	// AllowedEnvVars are passed through to child processes.
	AllowedEnvVars []string `yaml:"allowed_env_vars"`

	// MaxOutputBytes caps captured output per stream.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`
}

// LintConfig configures the lint target.
type LintConfig struct {
	// ExtraArgs are appended to the lint invocation.
	ExtraArgs []string `yaml:"extra_args"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Targets are re-run on change, in order.
	Targets []string `yaml:"targets"`

	// Debounce batches rapid saves.
	Debounce string `yaml:"debounce"`

	// Extensions limit which files trigger a run.
	Extensions []string `yaml:"extensions"`
}

// AuditConfig configures the execution audit trail.
type AuditConfig struct {
	// Enabled turns on the JSONL audit log.
	Enabled bool `yaml:"enabled"`

	// File is the audit log path.
	File string `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:     "forge",
			Packages: "./...",
			Main:     ".",
		},
		Toolchain: ToolchainConfig{
			Go:          "go",
			Gofmt:       "gofmt",
			Lint:        "golangci-lint",
			LintInstall: "github.com/golangci/golangci-lint/cmd/golangci-lint@latest",
			Bootstrap:   false,
		},
		Execution: ExecutionConfig{
			DefaultTimeout:   "2m",
			WorkingDirectory: ".",
			AllowedEnvVars: []string{
				"PATH", "HOME", "GOPATH", "GOROOT", "GOBIN", "GOCACHE",
				"GOMODCACHE", "GOFLAGS", "USER", "LANG", "LC_ALL", "TMPDIR", "CI",
			},
			MaxOutputBytes: 10 * 1024 * 1024,
		},
		Mode: ModeApply,
		Watch: WatchConfig{
			Targets:    []string{"build", "test"},
			Debounce:   "500ms",
			Extensions: []string{".go"},
		},
		Audit: AuditConfig{
			Enabled: false,
			File:    filepath.Join(".forge", "audit.jsonl"),
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. CI environments
// default to strict mode unless FORGE_MODE says otherwise.
func (c *Config) applyEnvOverrides() {
	if ci, err := strconv.ParseBool(os.Getenv("CI")); err == nil && ci {
		c.Mode = ModeStrict
	}
	if mode := os.Getenv("FORGE_MODE"); mode != "" {
		c.Mode = Mode(mode)
	}
	if bin := os.Getenv("FORGE_GO"); bin != "" {
		c.Toolchain.Go = bin
	}
	if bin := os.Getenv("FORGE_LINT"); bin != "" {
		c.Toolchain.Lint = bin
	}
	if timeout := os.Getenv("FORGE_TIMEOUT"); timeout != "" {
		c.Execution.DefaultTimeout = timeout
	}
	if dir := os.Getenv("FORGE_DIR"); dir != "" {
		c.Execution.WorkingDirectory = dir
	}
	if bootstrap, err := strconv.ParseBool(os.Getenv("FORGE_BOOTSTRAP")); err == nil {
		c.Toolchain.Bootstrap = bootstrap
	}
}

// Strict reports whether strict mode is active.
func (c *Config) Strict() bool {
	return c.Mode == ModeStrict
}

// ExecutionTimeout returns the default execution timeout as a duration.
func (c *Config) ExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.DefaultTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// WatchDebounce returns the watch debounce window as a duration.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeApply, ModeStrict:
	default:
		return fmt.Errorf("invalid mode: %q (valid: apply, strict)", c.Mode)
	}
	if c.Toolchain.Go == "" {
		return fmt.Errorf("toolchain.go must not be empty")
	}
	if _, err := time.ParseDuration(c.Execution.DefaultTimeout); err != nil {
		return fmt.Errorf("invalid execution.default_timeout: %w", err)
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce: %w", err)
		}
	}
	return nil
}
