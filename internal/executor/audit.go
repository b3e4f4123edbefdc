package executor

import (
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
	AuditBlocked  AuditEventType = "blocked"
)

// AuditEvent records one step of a command's life for the audit trail.
type AuditEvent struct {
	// Type is the event category.
	Type AuditEventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Backend is which executor handled the command.
	Backend Kind `json:"backend"`

	// Command is the command line involved.
	Command string `json:"command"`

	// Result is the execution result (complete/killed/error events).
	Result *ExecutionResult `json:"result,omitempty"`

	// BlockReason explains why execution was refused (blocked events).
	BlockReason string `json:"block_reason,omitempty"`
}

// Auditor fans execution events out to registered callbacks, an optional
// JSONL file sink, and a running metrics tally. All methods are safe on a
// nil receiver, so backends never have to check whether auditing is on.
type Auditor struct {
	mu sync.RWMutex

	// callbacks are invoked for each event
	callbacks []func(AuditEvent)

	// sink writes events to a file when enabled
	sink *auditFile

	// metrics tracks aggregate execution statistics
	metrics *auditMetrics
}

// NewAuditor creates an auditor with metrics enabled and no file sink.
func NewAuditor() *Auditor {
	return &Auditor{
		callbacks: make([]func(AuditEvent), 0),
		metrics:   newAuditMetrics(),
	}
}

// AddCallback registers a callback invoked for every event.
func (a *Auditor) AddCallback(callback func(AuditEvent)) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, callback)
}

// EnableFile starts appending events to a JSON Lines file at path.
func (a *Auditor) EnableFile(path string) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	sink, err := newAuditFile(path)
	if err != nil {
		return err
	}
	a.sink = sink
	return nil
}

// Close closes the file sink if one is open.
func (a *Auditor) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sink != nil {
		return a.sink.Close()
	}
	return nil
}

// Rotate renames the current audit file to a timestamped backup and opens
// a fresh one. No-op when file logging is disabled.
func (a *Auditor) Rotate() error {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	sink := a.sink
	a.mu.RUnlock()

	if sink == nil {
		return nil
	}
	return sink.Rotate()
}

// Log records an audit event.
func (a *Auditor) Log(event AuditEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	callbacks := a.callbacks
	sink := a.sink
	metrics := a.metrics
	a.mu.RUnlock()

	if metrics != nil {
		metrics.record(event)
	}

	for _, cb := range callbacks {
		cb(event)
	}

	if sink != nil {
		sink.Write(event)
	}
}

// Metrics returns the current execution metrics.
func (a *Auditor) Metrics() MetricsSnapshot {
	if a == nil {
		return MetricsSnapshot{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.metrics == nil {
		return MetricsSnapshot{}
	}
	return a.metrics.snapshot()
}

// logStart emits the start event for a command.
func (a *Auditor) logStart(backend Kind, command string) {
	a.Log(AuditEvent{
		Type:      AuditStart,
		Timestamp: time.Now(),
		Backend:   backend,
		Command:   command,
	})
}

// logResult emits the terminal event for a finished command, choosing the
// event type from the result's shape.
func (a *Auditor) logResult(backend Kind, result *ExecutionResult) {
	eventType := AuditComplete
	switch {
	case result.Killed:
		eventType = AuditKilled
	case result.Error != "":
		eventType = AuditError
	}

	a.Log(AuditEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Backend:   backend,
		Command:   result.Command,
		Result:    result,
	})
}

// LogBlocked records that a command was refused before reaching a backend.
func (a *Auditor) LogBlocked(command, reason string) {
	a.Log(AuditEvent{
		Type:        AuditBlocked,
		Timestamp:   time.Now(),
		Command:     command,
		BlockReason: reason,
	})
}

// auditFile appends audit events to a file in JSON Lines format.
type auditFile struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func newAuditFile(path string) (*auditFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	return &auditFile{file: file, path: path}, nil
}

// Write appends one event as a single JSON line.
func (f *auditFile) Write(event AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return fmt.Errorf("audit file not open")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = f.file.Write(append(data, '\n'))
	return err
}

// Close closes the audit file.
func (f *auditFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}

// Rotate renames the current file to a timestamped backup and reopens.
func (f *auditFile) Rotate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return fmt.Errorf("audit file not open")
	}

	if err := f.file.Close(); err != nil {
		return err
	}

	backupPath := fmt.Sprintf("%s.%s", f.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(f.path, backupPath); err != nil {
		return err
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	f.file = file
	return nil
}

// auditMetrics tracks aggregate execution statistics.
type auditMetrics struct {
	mu sync.RWMutex

	total     int64
	succeeded int64
	failed    int64
	killed    int64
	simulated int64
	blocked   int64

	totalDurationMs int64
	lastEventAt     time.Time
}

func newAuditMetrics() *auditMetrics {
	return &auditMetrics{}
}

func (m *auditMetrics) record(event AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastEventAt = event.Timestamp

	switch event.Type {
	case AuditStart:
		m.total++

	case AuditComplete:
		if event.Result != nil {
			if event.Result.Simulated {
				m.simulated++
			} else if event.Result.ExitCode == 0 {
				m.succeeded++
			} else {
				m.failed++
			}
			m.totalDurationMs += event.Result.Duration.Milliseconds()
		}

	case AuditKilled:
		m.killed++
		if event.Result != nil {
			m.totalDurationMs += event.Result.Duration.Milliseconds()
		}

	case AuditError:
		m.failed++

	case AuditBlocked:
		m.blocked++
	}
}

// MetricsSnapshot is a point-in-time copy of the execution counters.
type MetricsSnapshot struct {
	Total           int64     `json:"total"`
	Succeeded       int64     `json:"succeeded"`
	Failed          int64     `json:"failed"`
	Killed          int64     `json:"killed"`
	Simulated       int64     `json:"simulated"`
	Blocked         int64     `json:"blocked"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	AvgDurationMs   float64   `json:"avg_duration_ms"`
	SuccessRate     float64   `json:"success_rate"`
	LastEventAt     time.Time `json:"last_event_at"`
}

func (m *auditMetrics) snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		Total:           m.total,
		Succeeded:       m.succeeded,
		Failed:          m.failed,
		Killed:          m.killed,
		Simulated:       m.simulated,
		Blocked:         m.blocked,
		TotalDurationMs: m.totalDurationMs,
		LastEventAt:     m.lastEventAt,
	}

	completed := m.succeeded + m.failed + m.killed
	if completed > 0 {
		snap.SuccessRate = float64(m.succeeded) / float64(completed)
		snap.AvgDurationMs = float64(m.totalDurationMs) / float64(completed)
	}
	return snap
}
