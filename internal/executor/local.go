package executor

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"drift/internal/logging"
	"drift/internal/plan"
)

// shellMetachars are the characters that force a command through bash.
// A command containing none of them is split into words and run directly,
// keeping the shell out of the picture entirely.
const shellMetachars = "|&;<>$`()*?[]{}~"

// needsShell reports whether the command relies on shell interpretation.
func needsShell(command string) bool {
	return strings.ContainsAny(command, shellMetachars) ||
		strings.Contains(command, "\n")
}

// LocalExecutor spawns real processes on the host. When a sandbox root is
// configured, commands run with the root as working directory and absolute
// path arguments resolving outside it are refused. The refusal fails that
// one command only; earlier results in the plan stand.
type LocalExecutor struct {
	opts Options
}

// NewLocal creates a local executor.
func NewLocal(opts Options) *LocalExecutor {
	return &LocalExecutor{opts: opts}
}

// Kind reports the backend identity.
func (e *LocalExecutor) Kind() Kind { return KindLocal }

// Validate rejects empty commands and, when a sandbox root is set,
// commands naming absolute paths outside it. The path check is lexical:
// arguments are cleaned and compared against the root without touching
// the filesystem.
func (e *LocalExecutor) Validate(cmd plan.Command) error {
	if strings.TrimSpace(cmd.Command) == "" {
		return fmt.Errorf("empty command")
	}
	if e.opts.SandboxRoot == "" {
		return nil
	}

	root, err := filepath.Abs(e.opts.SandboxRoot)
	if err != nil {
		return fmt.Errorf("resolve sandbox root: %w", err)
	}

	for _, word := range splitWords(cmd.Command) {
		for _, path := range pathCandidates(word) {
			if !pathWithin(root, path) {
				return fmt.Errorf("path %s is outside sandbox root %s", path, root)
			}
		}
	}
	return nil
}

// Execute runs the command to completion, or until the timeout kills its
// process group.
func (e *LocalExecutor) Execute(ctx context.Context, cmd plan.Command) (*ExecutionResult, error) {
	if err := e.Validate(cmd); err != nil {
		logging.ExecutorWarn("refusing %q: %v", cmd.Command, err)
		result := failedResult(cmd, time.Now(), err)
		e.opts.Audit.logResult(KindLocal, result)
		return result, nil
	}

	e.opts.Audit.logStart(KindLocal, cmd.Command)

	timeout := e.opts.timeout()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var execCmd *exec.Cmd
	if needsShell(cmd.Command) {
		logging.ExecutorDebug("shell execute: %s", cmd.Command)
		execCmd = exec.CommandContext(execCtx, "bash", "-c", cmd.Command)
	} else {
		words := splitWords(cmd.Command)
		logging.ExecutorDebug("direct execute: %v", words)
		execCmd = exec.CommandContext(execCtx, words[0], words[1:]...)
	}

	if e.opts.SandboxRoot != "" {
		execCmd.Dir = e.opts.SandboxRoot
	}

	result := runCommand(execCtx, execCmd, cmd.Command, timeout, e.opts.maxOutput())
	e.opts.Audit.logResult(KindLocal, result)
	return result, nil
}

// splitWords breaks a command line into argv words, honoring single
// quotes, double quotes, and backslash escapes. An unterminated quote
// keeps the remainder as one word rather than erroring.
func splitWords(command string) []string {
	var words []string
	var current strings.Builder
	inSingle := false
	inDouble := false
	hasWord := false

	flush := func() {
		if hasWord {
			words = append(words, current.String())
			current.Reset()
			hasWord = false
		}
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
			hasWord = true
		case ch == '"' && !inSingle:
			inDouble = !inDouble
			hasWord = true
		case ch == '\\' && !inSingle && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
			hasWord = true
		case (ch == ' ' || ch == '\t') && !inSingle && !inDouble:
			flush()
		default:
			current.WriteRune(ch)
			hasWord = true
		}
	}
	flush()

	return words
}

// redirectPrefix matches a redirect operator glued to its target, with an
// optional file descriptor digit, as in `>/tmp/x` or `2>>log`.
var redirectPrefix = regexp.MustCompile(`^[0-9]*[<>]{1,2}`)

// pathCandidates extracts the absolute paths a word names: the bare word,
// a redirect target glued to its operator, and the value of a --flag=path
// argument.
func pathCandidates(word string) []string {
	var out []string

	s := word
	if m := redirectPrefix.FindString(s); m != "" {
		s = s[len(m):]
	}

	if filepath.IsAbs(s) {
		out = append(out, s)
	}
	if idx := strings.Index(s, "="); idx >= 0 {
		if v := s[idx+1:]; filepath.IsAbs(v) {
			out = append(out, v)
		}
	}
	return out
}

// pathWithin reports whether path, once cleaned, stays under root.
func pathWithin(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	sep := string(filepath.Separator)
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+sep))
}
