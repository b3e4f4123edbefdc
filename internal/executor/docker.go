package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"drift/internal/logging"
	"drift/internal/plan"
)

// DockerExecutor runs commands inside a disposable container with the
// network off and only the sandbox directory mounted. Even `rm -rf /`
// only nukes the container's filesystem.
type DockerExecutor struct {
	opts       Options
	dockerPath string
	available  bool
}

// NewDocker creates a docker executor and probes for a usable daemon.
func NewDocker(opts Options) *DockerExecutor {
	e := &DockerExecutor{opts: opts}
	e.detect()
	return e
}

// detect checks that the docker binary exists and the daemon answers.
func (e *DockerExecutor) detect() {
	path, err := exec.LookPath("docker")
	if err != nil {
		logging.ExecutorDebug("docker binary not found: %v", err)
		return
	}
	e.dockerPath = path

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	probe := exec.CommandContext(ctx, path, "version", "--format", "{{.Server.Version}}")
	if err := probe.Run(); err != nil {
		logging.ExecutorWarn("docker daemon not responding: %v", err)
		return
	}
	e.available = true
}

// Available reports whether a responsive docker daemon was found.
func (e *DockerExecutor) Available() bool { return e.available }

// Kind reports the backend identity.
func (e *DockerExecutor) Kind() Kind { return KindDocker }

// Validate rejects empty commands and reports an unusable daemon.
func (e *DockerExecutor) Validate(cmd plan.Command) error {
	if strings.TrimSpace(cmd.Command) == "" {
		return fmt.Errorf("empty command")
	}
	if !e.available {
		return fmt.Errorf("docker is not available on this system")
	}
	return nil
}

// Execute runs the command in a fresh container, mounting the sandbox
// root (or current directory) at /work.
func (e *DockerExecutor) Execute(ctx context.Context, cmd plan.Command) (*ExecutionResult, error) {
	if err := e.Validate(cmd); err != nil {
		logging.ExecutorWarn("refusing %q: %v", cmd.Command, err)
		result := failedResult(cmd, time.Now(), err)
		e.opts.Audit.logResult(KindDocker, result)
		return result, nil
	}

	mount := e.opts.SandboxRoot
	if mount == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		mount = wd
	}

	e.opts.Audit.logStart(KindDocker, cmd.Command)

	timeout := e.opts.timeout()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	image := e.opts.image()
	args := []string{
		"run", "--rm",
		"--network", "none",
		"-v", mount + ":/work",
		"-w", "/work",
		image,
		"bash", "-lc", cmd.Command,
	}
	logging.ExecutorDebug("docker execute in %s: %s", image, cmd.Command)
	execCmd := exec.CommandContext(execCtx, e.dockerPath, args...)

	result := runCommand(execCtx, execCmd, cmd.Command, timeout, e.opts.maxOutput())
	e.opts.Audit.logResult(KindDocker, result)
	return result, nil
}
