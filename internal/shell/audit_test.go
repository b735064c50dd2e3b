package shell

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAuditLogger_CallbacksAndMetrics(t *testing.T) {
	logger := NewAuditLogger()

	var events []AuditEvent
	logger.AddCallback(func(e AuditEvent) {
		events = append(events, e)
	})

	cmd := Command{Binary: "go", Args: []string{"build", "./..."}, RequestID: "req-1"}
	logger.Log(AuditEvent{Type: AuditStart, Timestamp: time.Now(), Command: cmd})
	logger.Log(AuditEvent{
		Type:      AuditComplete,
		Timestamp: time.Now(),
		Command:   cmd,
		Result:    &Result{ExitCode: 0, Duration: 100 * time.Millisecond},
	})

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}

	snap := logger.Snapshot()
	if snap.Total != 1 {
		t.Errorf("Expected 1 execution, got %d", snap.Total)
	}
	if snap.Succeeded != 1 {
		t.Errorf("Expected 1 success, got %d", snap.Succeeded)
	}
	if snap.ByBinary["go"] != 1 {
		t.Errorf("Expected per-binary count for go, got %v", snap.ByBinary)
	}
	if snap.SuccessRate != 1.0 {
		t.Errorf("Expected success rate 1.0, got %f", snap.SuccessRate)
	}
}

func TestAuditLogger_NonZeroAndFailures(t *testing.T) {
	logger := NewAuditLogger()
	cmd := Command{Binary: "go"}

	logger.Log(AuditEvent{Type: AuditStart, Timestamp: time.Now(), Command: cmd})
	logger.Log(AuditEvent{Type: AuditComplete, Timestamp: time.Now(), Command: cmd,
		Result: &Result{ExitCode: 2, Duration: time.Millisecond}})
	logger.Log(AuditEvent{Type: AuditStart, Timestamp: time.Now(), Command: cmd})
	logger.Log(AuditEvent{Type: AuditError, Timestamp: time.Now(), Command: cmd,
		Result: &Result{ExitCode: -1, Err: "spawn failed"}})
	logger.Log(AuditEvent{Type: AuditKilled, Timestamp: time.Now(), Command: cmd,
		Result: &Result{ExitCode: -1, Killed: true, Duration: time.Second}})

	snap := logger.Snapshot()
	if snap.NonZeroExits != 1 {
		t.Errorf("Expected 1 non-zero exit, got %d", snap.NonZeroExits)
	}
	if snap.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", snap.Failed)
	}
	if snap.Killed != 1 {
		t.Errorf("Expected 1 kill, got %d", snap.Killed)
	}
	if snap.SuccessRate != 0 {
		t.Errorf("Expected success rate 0, got %f", snap.SuccessRate)
	}
}

func TestAuditLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")

	logger := NewAuditLogger()
	if err := logger.EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging failed: %v", err)
	}
	defer logger.Close()

	logger.Log(AuditEvent{
		Type:      AuditComplete,
		Timestamp: time.Now(),
		Command:   Command{Binary: "gofmt", Args: []string{"-l", "."}},
		Result:    &Result{ExitCode: 0},
	})

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("audit log not written: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		t.Fatalf("Expected at least one JSONL line")
	}

	var event AuditEvent
	if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
		t.Fatalf("Line is not valid JSON: %v", err)
	}
	if event.Command.Binary != "gofmt" {
		t.Errorf("Unexpected binary in audit line: %s", event.Command.Binary)
	}
}

func TestReplayMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger := NewAuditLogger()
	if err := logger.EnableFileLogging(path); err != nil {
		t.Fatalf("EnableFileLogging failed: %v", err)
	}

	cmd := Command{Binary: "go", Args: []string{"test", "./..."}}
	logger.Log(AuditEvent{Type: AuditStart, Timestamp: time.Now(), Command: cmd})
	logger.Log(AuditEvent{Type: AuditComplete, Timestamp: time.Now(), Command: cmd,
		Result: &Result{ExitCode: 0, Duration: 50 * time.Millisecond}})
	logger.Log(AuditEvent{Type: AuditStart, Timestamp: time.Now(), Command: cmd})
	logger.Log(AuditEvent{Type: AuditComplete, Timestamp: time.Now(), Command: cmd,
		Result: &Result{ExitCode: 1, Duration: 30 * time.Millisecond}})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A fresh process sees the same counts by replaying the file.
	snap, err := ReplayMetrics(path)
	if err != nil {
		t.Fatalf("ReplayMetrics failed: %v", err)
	}
	if snap.Total != 2 {
		t.Errorf("Expected 2 executions, got %d", snap.Total)
	}
	if snap.Succeeded != 1 || snap.NonZeroExits != 1 {
		t.Errorf("Expected 1 success and 1 non-zero exit, got %d/%d",
			snap.Succeeded, snap.NonZeroExits)
	}
	if snap.SuccessRate != 0.5 {
		t.Errorf("Expected success rate 0.5, got %f", snap.SuccessRate)
	}
	if snap.ByBinary["go"] != 2 {
		t.Errorf("Expected per-binary count 2 for go, got %v", snap.ByBinary)
	}
}

func TestReplayMetrics_SkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	content := `{"type":"start","command":{"binary":"go"}}
{"type":"complete","command":{"binary":"go"},"result":{"exit_code":0}}
{"type":"start","command":{"bin
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	snap, err := ReplayMetrics(path)
	if err != nil {
		t.Fatalf("ReplayMetrics failed: %v", err)
	}
	if snap.Total != 1 {
		t.Errorf("Expected the truncated line to be skipped, got total %d", snap.Total)
	}
	if snap.Succeeded != 1 {
		t.Errorf("Expected 1 success, got %d", snap.Succeeded)
	}
}

func TestReplayMetrics_MissingFile(t *testing.T) {
	if _, err := ReplayMetrics(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Fatal("Expected an error for a missing audit log")
	}
}
