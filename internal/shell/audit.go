package shell

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditStart    AuditEventType = "start"
	AuditComplete AuditEventType = "complete"
	AuditKilled   AuditEventType = "killed"
	AuditError    AuditEventType = "error"
)

// AuditEvent records one phase of a command execution.
type AuditEvent struct {
	Type      AuditEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Command   Command        `json:"command"`
	Result    *Result        `json:"result,omitempty"`
}

// AuditLogger fans execution events out to callbacks, an optional JSONL
// file, and an aggregate metrics tracker.
type AuditLogger struct {
	mu        sync.RWMutex
	callbacks []func(AuditEvent)
	sink      *auditFileSink
	metrics   *Metrics
}

// NewAuditLogger creates an audit logger with metrics tracking.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{metrics: newMetrics()}
}

// AddCallback registers a callback invoked for every event.
func (l *AuditLogger) AddCallback(callback func(AuditEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// EnableFileLogging appends events as JSON lines to path, creating parent
// directories as needed.
func (l *AuditLogger) EnableFileLogging(path string) error {
	sink, err := newAuditFileSink(path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
	return nil
}

// Log dispatches an event.
func (l *AuditLogger) Log(event AuditEvent) {
	l.mu.RLock()
	callbacks := l.callbacks
	sink := l.sink
	metrics := l.metrics
	l.mu.RUnlock()

	if metrics != nil {
		metrics.record(event)
	}
	for _, cb := range callbacks {
		cb(event)
	}
	if sink != nil {
		_ = sink.write(event)
	}
}

// Snapshot returns current aggregate metrics.
func (l *AuditLogger) Snapshot() MetricsSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.metrics == nil {
		return MetricsSnapshot{}
	}
	return l.metrics.snapshot()
}

// ReplayMetrics rebuilds a metrics snapshot from a JSONL audit log, so
// past runs can be summarized from a fresh process. Unparseable lines
// (e.g. a partial write from an interrupted run) are skipped.
func ReplayMetrics(path string) (MetricsSnapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return MetricsSnapshot{}, err
	}
	defer file.Close()

	metrics := newMetrics()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		metrics.record(event)
	}
	if err := scanner.Err(); err != nil {
		return MetricsSnapshot{}, err
	}
	return metrics.snapshot(), nil
}

// Close releases the file sink, if any.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink != nil {
		return l.sink.close()
	}
	return nil
}

// auditFileSink writes events in JSON Lines format.
type auditFileSink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func newAuditFileSink(path string) (*auditFileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &auditFileSink{file: file, path: path}, nil
}

func (s *auditFileSink) write(event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("audit log not open")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.file.Write(append(data, '\n'))
	return err
}

func (s *auditFileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Metrics tracks aggregate execution statistics.
type Metrics struct {
	mu sync.RWMutex

	total     int64
	succeeded int64
	nonZero   int64
	failed    int64
	killed    int64

	totalDuration time.Duration
	byBinary      map[string]int64
	lastEvent     time.Time
}

func newMetrics() *Metrics {
	return &Metrics{byBinary: make(map[string]int64)}
}

func (m *Metrics) record(event AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastEvent = event.Timestamp

	switch event.Type {
	case AuditStart:
		m.total++
		m.byBinary[event.Command.Binary]++

	case AuditComplete:
		if event.Result == nil {
			return
		}
		if event.Result.ExitCode == 0 {
			m.succeeded++
		} else {
			m.nonZero++
		}
		m.totalDuration += event.Result.Duration

	case AuditKilled:
		m.killed++
		if event.Result != nil {
			m.totalDuration += event.Result.Duration
		}

	case AuditError:
		m.failed++
	}
}

// MetricsSnapshot is a point-in-time copy of the metrics.
type MetricsSnapshot struct {
	Total         int64            `json:"total"`
	Succeeded     int64            `json:"succeeded"`
	NonZeroExits  int64            `json:"non_zero_exits"`
	Failed        int64            `json:"failed"`
	Killed        int64            `json:"killed"`
	TotalDuration time.Duration    `json:"total_duration"`
	AvgDuration   time.Duration    `json:"avg_duration"`
	SuccessRate   float64          `json:"success_rate"`
	ByBinary      map[string]int64 `json:"by_binary"`
	LastEvent     time.Time        `json:"last_event"`
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byBinary := make(map[string]int64, len(m.byBinary))
	for k, v := range m.byBinary {
		byBinary[k] = v
	}

	snap := MetricsSnapshot{
		Total:         m.total,
		Succeeded:     m.succeeded,
		NonZeroExits:  m.nonZero,
		Failed:        m.failed,
		Killed:        m.killed,
		TotalDuration: m.totalDuration,
		ByBinary:      byBinary,
		LastEvent:     m.lastEvent,
	}

	completed := m.succeeded + m.nonZero + m.failed + m.killed
	if completed > 0 {
		snap.SuccessRate = float64(m.succeeded) / float64(completed)
		snap.AvgDuration = m.totalDuration / time.Duration(completed)
	}
	return snap
}
