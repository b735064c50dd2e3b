// Package shell is the execution layer of the target dispatcher. It runs
// exactly one external toolchain process per invocation, synchronously,
// capturing output and surfacing the process exit code unchanged.
//
// A command that runs and exits non-zero is not an error here: the exit
// code travels in the Result and the caller decides what it means. Only
// infrastructure failures (binary missing, spawn failure) are errors.
package shell

import (
	"strings"
	"time"
)

// Command describes a single toolchain invocation.
type Command struct {
	// Binary is the executable to run (e.g. "go", "gofmt").
	Binary string `json:"binary"`

	// Args are the command-line arguments.
	Args []string `json:"args,omitempty"`

	// Dir is the working directory. Empty means the runner default.
	Dir string `json:"dir,omitempty"`

	// Env holds extra environment entries in KEY=VALUE form, merged with
	// the runner's allowlisted environment.
	Env []string `json:"env,omitempty"`

	// Stdin provides input to the process.
	Stdin string `json:"stdin,omitempty"`

	// Stream mirrors the process output to the runner's stdout/stderr
	// while still capturing it. Used for targets like run and test where
	// the user wants live output.
	Stream bool `json:"stream,omitempty"`

	// Limits constrains execution. Nil means runner defaults.
	Limits *Limits `json:"limits,omitempty"`

	// RequestID uniquely identifies this invocation for audit.
	RequestID string `json:"request_id,omitempty"`

	// Tags are arbitrary key-value pairs carried into the audit trail,
	// e.g. the target name that produced this command.
	Tags map[string]string `json:"tags,omitempty"`
}

// String returns the command as it would be typed in a shell.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Limits constrains a single execution.
type Limits struct {
	// Timeout is the maximum wall-clock time. Zero means runner default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxOutputBytes caps captured stdout+stderr. Zero means runner
	// default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// Result is the outcome of one invocation.
type Result struct {
	// ExitCode is the process exit code, -1 when the process never ran
	// or was killed before exiting.
	ExitCode int `json:"exit_code"`

	// Stdout and Stderr are the captured streams.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Duration is wall-clock execution time.
	Duration time.Duration `json:"duration"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Killed indicates the process was terminated by timeout or
	// cancellation, with KillReason explaining which.
	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output capture hit the size cap.
	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// Err holds an infrastructure failure (spawn error), never a
	// non-zero exit.
	Err string `json:"error,omitempty"`

	// Command is a copy of what ran, for the audit trail.
	Command *Command `json:"command,omitempty"`
}

// Failed reports whether the infrastructure failed to run the command.
func (r *Result) Failed() bool {
	return r.Err != ""
}

// Ok reports whether the command ran and exited zero.
func (r *Result) Ok() bool {
	return r.Err == "" && !r.Killed && r.ExitCode == 0
}

// Output returns stdout and stderr joined for display.
func (r *Result) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// DefaultDir is used when Command.Dir is empty.
	DefaultDir string `json:"default_dir"`

	// DefaultTimeout applies when a command carries no timeout.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps every timeout, including explicit ones.
	MaxTimeout time.Duration `json:"max_timeout"`

	// AllowedEnv lists environment variables passed through from the
	// parent process.
	AllowedEnv []string `json:"allowed_env"`

	// MaxOutputBytes caps captured output per stream.
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// AuditCallback receives an event per execution phase (optional).
	AuditCallback func(AuditEvent) `json:"-"`
}

// DefaultRunnerConfig returns the defaults used by the CLI.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DefaultDir:     ".",
		DefaultTimeout: 2 * time.Minute,
		MaxTimeout:     30 * time.Minute,
		MaxOutputBytes: 10 * 1024 * 1024,
		AllowedEnv: []string{
			"PATH", "HOME", "GOPATH", "GOROOT", "GOBIN", "GOCACHE",
			"GOMODCACHE", "GOFLAGS", "USER", "LANG", "LC_ALL", "TMPDIR", "CI",
		},
	}
}

// Merge applies runner defaults to a command, capping its timeout.
func (c RunnerConfig) Merge(cmd Command) Command {
	out := cmd
	if out.Dir == "" {
		out.Dir = c.DefaultDir
	}
	if out.Limits == nil {
		out.Limits = &Limits{}
	} else {
		limits := *out.Limits
		out.Limits = &limits
	}
	if out.Limits.Timeout == 0 {
		out.Limits.Timeout = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && out.Limits.Timeout > c.MaxTimeout {
		out.Limits.Timeout = c.MaxTimeout
	}
	if out.Limits.MaxOutputBytes == 0 {
		out.Limits.MaxOutputBytes = c.MaxOutputBytes
	}
	return out
}
