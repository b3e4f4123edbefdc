package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"drift/internal/logging"
	"drift/internal/plan"
)

// MockExecutor pretends to run commands. Nothing is spawned and no file is
// touched, so classification, snapshots, confirmation, and history can all
// be exercised with zero risk to the machine.
type MockExecutor struct {
	mu   sync.Mutex
	log  []string
	opts Options
}

// NewMock creates a mock executor.
func NewMock(opts Options) *MockExecutor {
	return &MockExecutor{opts: opts}
}

// Kind reports the backend identity.
func (e *MockExecutor) Kind() Kind { return KindMock }

// Validate accepts every non-empty command.
func (e *MockExecutor) Validate(cmd plan.Command) error {
	if strings.TrimSpace(cmd.Command) == "" {
		return fmt.Errorf("empty command")
	}
	return nil
}

// Execute records the command and reports a simulated success. When the
// plan carries a dry-run preview form, that is what the output names.
func (e *MockExecutor) Execute(ctx context.Context, cmd plan.Command) (*ExecutionResult, error) {
	if err := e.Validate(cmd); err != nil {
		return failedResult(cmd, time.Now(), err), nil
	}

	start := time.Now()
	e.opts.Audit.logStart(KindMock, cmd.Command)

	preview := cmd.Command
	if cmd.DryRun != "" {
		preview = cmd.DryRun
	}

	e.mu.Lock()
	e.log = append(e.log, cmd.Command)
	e.mu.Unlock()

	logging.ExecutorDebug("mock execute: %s", cmd.Command)

	result := &ExecutionResult{
		Command:   cmd.Command,
		ExitCode:  0,
		Stdout:    fmt.Sprintf("[mock] would execute: %s\n", preview),
		StartedAt: start,
		Duration:  time.Since(start),
		Simulated: true,
	}
	e.opts.Audit.logResult(KindMock, result)
	return result, nil
}

// Log returns every command this executor has been asked to run.
func (e *MockExecutor) Log() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.log))
	copy(out, e.log)
	return out
}
