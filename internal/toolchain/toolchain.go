// Package toolchain probes the external tools the targets dispatch to and,
// when bootstrap is enabled, installs the installable ones that are missing.
package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"forge/internal/config"
	"forge/internal/logging"
	"forge/internal/shell"

	"go.uber.org/zap"
)

// Tool describes one external dependency of the target set.
type Tool struct {
	// Name is the display name.
	Name string

	// Binary is the executable looked up on PATH.
	Binary string

	// Install is the go-installable module path@version, empty for tools
	// that ship with the Go distribution.
	Install string

	// Required marks tools without which no target can run.
	Required bool
}

// Status is the probe result for one tool.
type Status struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// Manager probes and bootstraps the toolchain.
type Manager struct {
	cfg    *config.Config
	runner *shell.Runner

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// NewManager creates a toolchain manager.
func NewManager(cfg *config.Config, runner *shell.Runner) *Manager {
	return &Manager{
		cfg:      cfg,
		runner:   runner,
		lookPath: exec.LookPath,
	}
}

// Tools returns the tool set derived from configuration. The go and gofmt
// binaries are required; the lint binary is optional and installable.
func (m *Manager) Tools() []Tool {
	t := m.cfg.Toolchain
	return []Tool{
		{Name: "go", Binary: t.Go, Required: true},
		{Name: "gofmt", Binary: t.Gofmt, Required: true},
		{Name: "lint", Binary: t.Lint, Install: t.LintInstall},
	}
}

// Probe checks each tool on PATH and resolves its version.
func (m *Manager) Probe(ctx context.Context) []Status {
	tools := m.Tools()
	statuses := make([]Status, 0, len(tools))
	for _, tool := range tools {
		status := Status{Tool: tool}
		if path, err := m.lookPath(tool.Binary); err == nil {
			status.Found = true
			status.Path = path
			status.Version = m.version(ctx, tool)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Ensure verifies the toolchain before dispatch. Missing required tools are
// always an error. Missing installable tools are installed when bootstrap
// is enabled and reported otherwise.
func (m *Manager) Ensure(ctx context.Context) error {
	log := logging.Named("toolchain")

	for _, status := range m.Probe(ctx) {
		if status.Found {
			continue
		}
		tool := status.Tool

		if tool.Required {
			return fmt.Errorf("required tool %q not found on PATH", tool.Binary)
		}
		if tool.Install == "" {
			log.Debug("optional tool missing, no installer", zap.String("tool", tool.Name))
			continue
		}
		if !m.cfg.Toolchain.Bootstrap {
			log.Warn("optional tool missing; enable toolchain.bootstrap to install",
				zap.String("tool", tool.Name),
				zap.String("binary", tool.Binary))
			continue
		}

		log.Info("installing tool",
			zap.String("tool", tool.Name),
			zap.String("module", tool.Install))
		if err := m.install(ctx, tool); err != nil {
			return fmt.Errorf("install %s: %w", tool.Name, err)
		}
	}
	return nil
}

func (m *Manager) install(ctx context.Context, tool Tool) error {
	result, err := m.runner.Run(ctx, shell.Command{
		Binary: m.cfg.Toolchain.Go,
		Args:   []string{"install", tool.Install},
		Tags:   map[string]string{"target": "tools"},
	})
	if err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("go install did not run: %s", result.Err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("go install exited %d: %s", result.ExitCode, strings.TrimSpace(result.Output()))
	}
	return nil
}

// version asks a tool for its version string, best effort.
func (m *Manager) version(ctx context.Context, tool Tool) string {
	args := []string{"version"}
	if tool.Name == "gofmt" {
		// gofmt has no version subcommand; report the go distribution's.
		return ""
	}
	result, err := m.runner.Run(ctx, shell.Command{Binary: tool.Binary, Args: args})
	if err != nil || !result.Ok() {
		return ""
	}
	return strings.TrimSpace(firstLine(result.Stdout))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
