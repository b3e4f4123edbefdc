// Package executor runs plan commands through one of three interchangeable
// backends: a mock that never touches the system, a local backend that
// spawns real processes, and a docker backend that isolates them inside a
// throwaway container. Every backend produces the same ExecutionResult
// shape, so callers never branch on which one is active.
package executor

import (
	"context"
	"time"

	"drift/internal/plan"
)

// Kind identifies an executor backend.
type Kind string

const (
	// KindMock simulates execution without running anything.
	KindMock Kind = "mock"

	// KindLocal spawns real processes on the host.
	KindLocal Kind = "local"

	// KindDocker runs commands inside a disposable container.
	KindDocker Kind = "docker"
)

// Executor runs one command at a time and reports what happened.
type Executor interface {
	// Execute runs the command and returns its result. A non-nil error
	// means the backend itself failed; command failures (non-zero exit,
	// timeout) are reported inside the result.
	Execute(ctx context.Context, cmd plan.Command) (*ExecutionResult, error)

	// Validate checks whether the command is acceptable to this backend
	// without running it.
	Validate(cmd plan.Command) error

	// Kind reports which backend this is.
	Kind() Kind
}

// ExecutionResult is the outcome of running a single command.
// A command that runs and exits non-zero is not an infrastructure error:
// Error is reserved for failures to launch or supervise the process.
type ExecutionResult struct {
	// Command is the command line as it appeared in the plan.
	Command string `json:"command"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output, possibly truncated.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error, possibly truncated.
	Stderr string `json:"stderr"`

	// Duration is how long the command ran.
	Duration time.Duration `json:"duration"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// Simulated is true when no real process ran (mock backend, dry run).
	Simulated bool `json:"simulated,omitempty"`

	// Skipped is true when the command never ran because an earlier
	// command in the plan failed.
	Skipped bool `json:"skipped,omitempty"`

	// Killed indicates the command was forcibly terminated.
	Killed bool `json:"killed,omitempty"`

	// KillReason explains why the command was killed.
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output was cut off by the size cap.
	Truncated bool `json:"truncated,omitempty"`

	// TruncatedBytes is how many bytes were discarded.
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// Error holds any infrastructure-level error message.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the command ran and went wrong: a non-zero exit,
// a kill, or an infrastructure error. Skipped and simulated commands are
// not failures.
func (r *ExecutionResult) Failed() bool {
	if r.Skipped || r.Simulated {
		return false
	}
	return r.ExitCode != 0 || r.Killed || r.Error != ""
}

// SkippedResult builds the marker recorded for a command that never ran
// because an earlier command in the plan failed.
func SkippedResult(cmd plan.Command) *ExecutionResult {
	return &ExecutionResult{
		Command:  cmd.Command,
		ExitCode: -1,
		Skipped:  true,
	}
}

// failedResult builds the result for a command the backend refused to run.
func failedResult(cmd plan.Command, start time.Time, err error) *ExecutionResult {
	return &ExecutionResult{
		Command:   cmd.Command,
		ExitCode:  -1,
		StartedAt: start,
		Error:     err.Error(),
	}
}

// Options carries the runtime knobs shared by all backends.
type Options struct {
	// Timeout bounds each command. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxOutputBytes caps captured stdout and stderr individually.
	// Zero means DefaultMaxOutput.
	MaxOutputBytes int64

	// SandboxRoot confines the local backend to a directory subtree and
	// is the directory mounted into the docker backend's container.
	// Empty means no confinement; commands run in the current directory.
	SandboxRoot string

	// DockerImage is the image the docker backend runs commands in.
	DockerImage string

	// Audit receives an event for every execution. Nil disables auditing.
	Audit *Auditor
}

const (
	// DefaultTimeout bounds a command when no timeout is configured.
	DefaultTimeout = 5 * time.Minute

	// DefaultMaxOutput caps a captured stream when no cap is configured.
	DefaultMaxOutput int64 = 10 * 1024 * 1024

	// DefaultDockerImage is used when no image is configured.
	DefaultDockerImage = "ubuntu:24.04"
)

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o Options) maxOutput() int64 {
	if o.MaxOutputBytes > 0 {
		return o.MaxOutputBytes
	}
	return DefaultMaxOutput
}

func (o Options) image() string {
	if o.DockerImage != "" {
		return o.DockerImage
	}
	return DefaultDockerImage
}
