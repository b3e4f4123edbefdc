package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"drift/internal/logging"
)

// runCommand supervises a prepared exec.Cmd to completion and translates
// what happened into an ExecutionResult. The command is put in its own
// process group so the timeout takes down the whole tree. Non-zero exits
// and kills are result data; only infrastructure failures set Error.
func runCommand(execCtx context.Context, execCmd *exec.Cmd, command string, timeout time.Duration, maxOutput int64) *ExecutionResult {
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = 5 * time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result := &ExecutionResult{
		Command:   command,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}

	err := execCmd.Run()

	result.Duration = time.Since(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		logging.ExecutorWarn("output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	if err != nil {
		switch {
		case execCtx.Err() == context.DeadlineExceeded:
			result.Killed = true
			result.KillReason = fmt.Sprintf("timeout after %s", timeout)
			logging.ExecutorWarn("killed %q: %s", command, result.KillReason)

		case execCtx.Err() == context.Canceled:
			result.Killed = true
			result.KillReason = "context canceled"
			logging.ExecutorDebug("canceled: %s", command)

		default:
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
				logging.ExecutorDebug("exited %d: %s", result.ExitCode, command)
			} else {
				result.Error = err.Error()
				logging.ExecutorError("failed %q: %v", command, err)
			}
		}
	} else {
		result.ExitCode = 0
		logging.ExecutorDebug("exited 0: %s", command)
	}

	return result
}

// limitedWriter is an io.Writer that caps total bytes written and counts
// what it threw away.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // claim success so the pipe keeps draining
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // report full length to avoid short-write errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
