package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"forge/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes commands on the host via os/exec.
type Runner struct {
	mu     sync.RWMutex
	config RunnerConfig

	// stdout/stderr are the streaming sinks for Command.Stream. They
	// default to the process's own streams and are swappable for tests.
	stdout io.Writer
	stderr io.Writer
}

// NewRunner creates a runner with default config.
func NewRunner() *Runner {
	return NewRunnerWithConfig(DefaultRunnerConfig())
}

// NewRunnerWithConfig creates a runner with custom config.
func NewRunnerWithConfig(config RunnerConfig) *Runner {
	return &Runner{
		config: config,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// SetAuditCallback installs the audit event callback.
func (r *Runner) SetAuditCallback(callback func(AuditEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.AuditCallback = callback
}

// SetStreams redirects streamed output. Used by tests.
func (r *Runner) SetStreams(stdout, stderr io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stdout = stdout
	r.stderr = stderr
}

func (r *Runner) emit(event AuditEvent) {
	r.mu.RLock()
	callback := r.config.AuditCallback
	r.mu.RUnlock()
	if callback != nil {
		callback(event)
	}
}

// Validate checks that a command can be executed.
func (r *Runner) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Run executes a command synchronously to completion. The returned error is
// non-nil only for invalid commands; execution failures, timeouts, and
// non-zero exits are reported through the Result.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	log := logging.Named("shell")

	if err := r.Validate(cmd); err != nil {
		return nil, err
	}

	r.mu.RLock()
	config := r.config
	stdout := r.stdout
	stderr := r.stderr
	r.mu.RUnlock()

	cmd = config.Merge(cmd)
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}

	log.Debug("executing command",
		zap.String("command", cmd.String()),
		zap.String("dir", cmd.Dir),
		zap.Duration("timeout", cmd.Limits.Timeout),
		zap.String("request_id", cmd.RequestID))

	result := &Result{
		ExitCode: -1,
		Command:  &cmd,
	}

	r.emit(AuditEvent{
		Type:      AuditStart,
		Timestamp: time.Now(),
		Command:   cmd,
	})

	execCtx, cancel := context.WithTimeout(ctx, cmd.Limits.Timeout)
	defer cancel()

	proc := exec.CommandContext(execCtx, cmd.Binary, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = buildEnvironment(config.AllowedEnv, cmd.Env)
	if cmd.Stdin != "" {
		proc.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	outCapture := &cappedWriter{w: &stdoutBuf, max: cmd.Limits.MaxOutputBytes}
	errCapture := &cappedWriter{w: &stderrBuf, max: cmd.Limits.MaxOutputBytes}

	if cmd.Stream {
		proc.Stdout = io.MultiWriter(stdout, outCapture)
		proc.Stderr = io.MultiWriter(stderr, errCapture)
	} else {
		proc.Stdout = outCapture
		proc.Stderr = errCapture
	}

	result.StartedAt = time.Now()
	err := proc.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	if outCapture.truncated || errCapture.truncated {
		result.Truncated = true
		result.TruncatedBytes = outCapture.discarded + errCapture.discarded
		log.Warn("command output truncated",
			zap.String("command", cmd.Binary),
			zap.Int64("discarded_bytes", result.TruncatedBytes))
	}

	switch {
	case err == nil:
		result.ExitCode = 0
		r.emit(AuditEvent{Type: AuditComplete, Timestamp: time.Now(), Command: cmd, Result: result})

	case execCtx.Err() == context.DeadlineExceeded:
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", cmd.Limits.Timeout)
		log.Warn("command killed",
			zap.String("command", cmd.Binary),
			zap.String("reason", result.KillReason))
		r.emit(AuditEvent{Type: AuditKilled, Timestamp: time.Now(), Command: cmd, Result: result})

	case execCtx.Err() == context.Canceled:
		result.Killed = true
		result.KillReason = "canceled"
		r.emit(AuditEvent{Type: AuditKilled, Timestamp: time.Now(), Command: cmd, Result: result})

	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			log.Debug("command exited non-zero",
				zap.String("command", cmd.Binary),
				zap.Int("exit_code", result.ExitCode))
			r.emit(AuditEvent{Type: AuditComplete, Timestamp: time.Now(), Command: cmd, Result: result})
		} else {
			result.Err = err.Error()
			log.Error("command failed to run",
				zap.String("command", cmd.Binary),
				zap.Error(err))
			r.emit(AuditEvent{Type: AuditError, Timestamp: time.Now(), Command: cmd, Result: result})
		}
	}

	log.Debug("command finished",
		zap.String("command", cmd.Binary),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// buildEnvironment assembles the child environment from the allowlist plus
// command-specific entries.
func buildEnvironment(allowed, extra []string) []string {
	env := make([]string, 0, len(allowed)+len(extra))
	for _, key := range allowed {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	return append(env, extra...)
}

// cappedWriter limits the total bytes written through it, discarding the
// rest while reporting full writes so the child never sees a short write.
type cappedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (cw *cappedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if cw.max <= 0 {
		return cw.w.Write(p)
	}
	if cw.written >= cw.max {
		cw.truncated = true
		cw.discarded += int64(n)
		return n, nil
	}
	remaining := cw.max - cw.written
	if int64(n) > remaining {
		cw.truncated = true
		cw.discarded += int64(n) - remaining
		written, err := cw.w.Write(p[:remaining])
		cw.written += int64(written)
		return n, err
	}
	written, err := cw.w.Write(p)
	cw.written += int64(written)
	return written, err
}
