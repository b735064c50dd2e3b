package task

import (
	"context"
	"fmt"
	"strings"

	"forge/internal/config"
	"forge/internal/logging"
	"forge/internal/shell"
	"forge/pkg/stringutil"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExitError carries a wrapped command's non-zero exit code so the process
// can exit with the same code.
type ExitError struct {
	// Code is the underlying command's exit code.
	Code int

	// Target is the target that was running.
	Target string

	// Command is the invocation that failed, for display.
	Command string

	// Detail optionally explains a judgment failure (e.g. format drift).
	Detail string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("target %s: %s exited with code %d", e.Target, e.Command, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// CommandRunner is the slice of shell.Runner the dispatcher needs.
type CommandRunner interface {
	Run(ctx context.Context, cmd shell.Command) (*shell.Result, error)
}

// Runner dispatches targets to the shell.
type Runner struct {
	cfg      *config.Config
	shell    CommandRunner
	registry *Registry
}

// NewRunner creates a target runner.
func NewRunner(cfg *config.Config, sh CommandRunner, registry *Registry) *Runner {
	return &Runner{cfg: cfg, shell: sh, registry: registry}
}

// Registry returns the target registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run dispatches one target. The returned error is an *ExitError when a
// wrapped command exited non-zero, an *UnknownTargetError for bad names,
// and a plain error for infrastructure failures.
func (r *Runner) Run(ctx context.Context, name string, opts Options) error {
	target, ok := r.registry.Get(name)
	if !ok {
		return &UnknownTargetError{Name: name, Known: r.registry.Names()}
	}
	if len(target.Stages) > 0 {
		return r.runStages(ctx, target, opts)
	}
	return r.runCommands(ctx, target, opts)
}

func (r *Runner) runCommands(ctx context.Context, target Target, opts Options) error {
	log := logging.Named("task")

	for _, cmd := range target.Commands(r.cfg, opts) {
		if cmd.Dir == "" {
			cmd.Dir = r.cfg.Execution.WorkingDirectory
		}

		log.Debug("dispatching",
			zap.String("target", target.Name),
			zap.String("command", cmd.String()))

		result, err := r.shell.Run(ctx, cmd)
		if err != nil {
			return err
		}

		if result.Failed() {
			if cmd.Tags[TagOptional] == "true" {
				log.Warn("optional tool unavailable, skipping",
					zap.String("target", target.Name),
					zap.String("command", cmd.String()),
					zap.String("reason", result.Err))
				continue
			}
			return fmt.Errorf("target %s: %s: %s", target.Name, cmd.String(), result.Err)
		}
		if result.Killed {
			return fmt.Errorf("target %s: %s killed: %s", target.Name, cmd.String(), result.KillReason)
		}

		if err := judge(target.Name, cmd, result); err != nil {
			r.report(target.Name, cmd, result)
			return err
		}
	}
	return nil
}

// runStages runs an aggregate target: stages sequentially, the targets
// within one stage concurrently. Concurrent targets never stream so their
// output does not interleave.
func (r *Runner) runStages(ctx context.Context, target Target, opts Options) error {
	for _, stage := range target.Stages {
		if len(stage) == 1 {
			if err := r.Run(ctx, stage[0], opts); err != nil {
				return err
			}
			continue
		}

		stageOpts := opts
		stageOpts.Stream = false

		g, gctx := errgroup.WithContext(ctx)
		for _, sub := range stage {
			g.Go(func() error {
				return r.Run(gctx, sub, stageOpts)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// judge turns a command result into the target outcome. The default is
// plain exit-code passthrough; TagCheck adds target-specific judgments on
// top.
func judge(targetName string, cmd shell.Command, result *shell.Result) error {
	if result.ExitCode != 0 {
		return &ExitError{
			Code:    result.ExitCode,
			Target:  targetName,
			Command: cmd.String(),
		}
	}

	if cmd.Tags[TagCheck] == CheckFmtDrift {
		if files := stringutil.SplitAny(result.Stdout, []rune{'\n', '\r'}); len(files) > 0 {
			return &ExitError{
				Code:    1,
				Target:  targetName,
				Command: cmd.String(),
				Detail:  fmt.Sprintf("%d file(s) need formatting: %s", len(files), strings.Join(files, ", ")),
			}
		}
	}
	return nil
}

// report logs parsed diagnostics from a failed command, when present.
func (r *Runner) report(targetName string, cmd shell.Command, result *shell.Result) {
	log := logging.Named("task")
	diags := ParseDiagnostics(result.Output())
	for _, d := range diags {
		log.Warn("diagnostic",
			zap.String("target", targetName),
			zap.String("file", d.File),
			zap.Int("line", d.Line),
			zap.Int("column", d.Column),
			zap.String("message", d.Message))
	}
	if len(diags) == 0 && result.Output() != "" {
		log.Debug("command output",
			zap.String("target", targetName),
			zap.String("command", cmd.String()),
			zap.String("output", result.Output()))
	}
}
