// Package task maps named build targets onto toolchain commands. Each
// target expands to one or more shell commands that run in order; the first
// non-zero exit stops the target and becomes the process exit code.
package task

import (
	"fmt"
	"sort"

	"forge/internal/config"
	"forge/internal/shell"
)

// Tag keys attached to generated commands.
const (
	// TagTarget names the target that produced a command.
	TagTarget = "target"

	// TagOptional marks commands whose binary may legitimately be
	// missing; a spawn failure skips them instead of failing the target.
	TagOptional = "optional"

	// TagCheck names a target judgment applied on top of the exit code.
	TagCheck = "check"
)

// CheckFmtDrift is the TagCheck value for format checks: any listed file
// means formatting drift, which is a failure even though gofmt -l exits 0.
const CheckFmtDrift = "fmt-drift"

// Options modify a single dispatch.
type Options struct {
	// Strict selects check mode for formatting and linting.
	Strict bool

	// Stream mirrors command output live to the terminal.
	Stream bool

	// Args are extra arguments forwarded to the underlying command, used
	// by the run and doc targets.
	Args []string
}

// Target is one named build-automation entry.
type Target struct {
	// Name invokes the target from the CLI.
	Name string

	// Summary is a one-line description for listings.
	Summary string

	// Commands expands the target into toolchain invocations. Nil for
	// aggregate targets.
	Commands func(cfg *config.Config, opts Options) []shell.Command

	// Stages lists sub-target names for aggregate targets. Stages run in
	// order; targets within a stage run concurrently.
	Stages [][]string
}

// Registry holds the known targets in registration order.
type Registry struct {
	order   []string
	targets map[string]Target
}

// NewRegistry returns a registry with the built-in target set.
func NewRegistry() *Registry {
	r := &Registry{targets: make(map[string]Target)}
	r.Register(Target{
		Name:     "build",
		Summary:  "Compile the configured packages",
		Commands: buildCommands,
	})
	r.Register(Target{
		Name:     "test",
		Summary:  "Run the test suite",
		Commands: testCommands,
	})
	r.Register(Target{
		Name:     "fmt",
		Summary:  "Format sources (check only in strict mode)",
		Commands: fmtCommands,
	})
	r.Register(Target{
		Name:     "lint",
		Summary:  "Run static analysis",
		Commands: lintCommands,
	})
	r.Register(Target{
		Name:     "doc",
		Summary:  "Show package documentation",
		Commands: docCommands,
	})
	r.Register(Target{
		Name:     "run",
		Summary:  "Build and run the main package",
		Commands: runCommands,
	})
	r.Register(Target{
		Name:     "clean",
		Summary:  "Remove build artifacts (and verify formatting in strict mode)",
		Commands: cleanCommands,
	})
	r.Register(Target{
		Name:    "check",
		Summary: "Aggregate: fmt, then lint and test",
		Stages:  [][]string{{"fmt"}, {"lint", "test"}},
	})
	return r
}

// Register adds or replaces a target.
func (r *Registry) Register(t Target) {
	if _, exists := r.targets[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.targets[t.Name] = t
}

// Get looks a target up by name.
func (r *Registry) Get(name string) (Target, bool) {
	t, ok := r.targets[name]
	return t, ok
}

// List returns all targets in registration order.
func (r *Registry) List() []Target {
	out := make([]Target, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.targets[name])
	}
	return out
}

// Names returns the sorted target names, for error messages.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

func buildCommands(cfg *config.Config, opts Options) []shell.Command {
	return []shell.Command{{
		Binary: cfg.Toolchain.Go,
		Args:   []string{"build", cfg.Project.Packages},
		Stream: opts.Stream,
		Tags:   map[string]string{TagTarget: "build"},
	}}
}

func testCommands(cfg *config.Config, opts Options) []shell.Command {
	args := []string{"test"}
	args = append(args, opts.Args...)
	args = append(args, cfg.Project.Packages)
	return []shell.Command{{
		Binary: cfg.Toolchain.Go,
		Args:   args,
		Stream: opts.Stream,
		Tags:   map[string]string{TagTarget: "test"},
	}}
}

func fmtCommands(cfg *config.Config, opts Options) []shell.Command {
	if opts.Strict {
		return []shell.Command{{
			Binary: cfg.Toolchain.Gofmt,
			Args:   []string{"-l", "."},
			Tags:   map[string]string{TagTarget: "fmt", TagCheck: CheckFmtDrift},
		}}
	}
	return []shell.Command{{
		Binary: cfg.Toolchain.Gofmt,
		Args:   []string{"-w", "."},
		Tags:   map[string]string{TagTarget: "fmt"},
	}}
}

func lintCommands(cfg *config.Config, opts Options) []shell.Command {
	cmds := []shell.Command{{
		Binary: cfg.Toolchain.Go,
		Args:   []string{"vet", cfg.Project.Packages},
		Stream: opts.Stream,
		Tags:   map[string]string{TagTarget: "lint"},
	}}

	lintArgs := []string{"run"}
	if !opts.Strict {
		lintArgs = append(lintArgs, "--fix")
	}
	lintArgs = append(lintArgs, cfg.Lint.ExtraArgs...)
	cmds = append(cmds, shell.Command{
		Binary: cfg.Toolchain.Lint,
		Args:   lintArgs,
		Stream: opts.Stream,
		Tags:   map[string]string{TagTarget: "lint", TagOptional: "true"},
	})
	return cmds
}

func docCommands(cfg *config.Config, opts Options) []shell.Command {
	args := []string{"doc"}
	if len(opts.Args) > 0 {
		args = append(args, opts.Args...)
	} else {
		args = append(args, cfg.Project.Main)
	}
	return []shell.Command{{
		Binary: cfg.Toolchain.Go,
		Args:   args,
		Stream: opts.Stream,
		Tags:   map[string]string{TagTarget: "doc"},
	}}
}

func runCommands(cfg *config.Config, opts Options) []shell.Command {
	args := []string{"run", cfg.Project.Main}
	args = append(args, opts.Args...)
	return []shell.Command{{
		Binary: cfg.Toolchain.Go,
		Args:   args,
		Stream: true, // run always streams
		Tags:   map[string]string{TagTarget: "run"},
	}}
}

func cleanCommands(cfg *config.Config, opts Options) []shell.Command {
	cmds := []shell.Command{{
		Binary: cfg.Toolchain.Go,
		Args:   []string{"clean", cfg.Project.Packages},
		Tags:   map[string]string{TagTarget: "clean"},
	}}
	if opts.Strict {
		cmds = append(cmds, shell.Command{
			Binary: cfg.Toolchain.Gofmt,
			Args:   []string{"-l", "."},
			Tags:   map[string]string{TagTarget: "clean", TagCheck: CheckFmtDrift},
		})
	}
	return cmds
}

// UnknownTargetError is returned for names not in the registry.
type UnknownTargetError struct {
	Name  string
	Known []string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target %q (known targets: %v)", e.Name, e.Known)
}
