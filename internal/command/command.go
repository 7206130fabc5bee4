// Package command runs external programs with wall-clock timeouts and
// captures their output. Adapters never spawn processes directly; they go
// through Run so that timeout and kill semantics stay uniform.
package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Result of a subprocess execution.
type Result struct {
	ReturnCode int
	Stdout     string
	Stderr     string
	Command    string
	TimedOut   bool
}

// Success reports whether the command exited cleanly within its timeout.
func (r Result) Success() bool {
	return r.ReturnCode == 0 && !r.TimedOut
}

// Options for Run.
type Options struct {
	Timeout time.Duration // wall-clock limit; 0 means DefaultTimeout
	Dir     string
	Env     []string // appended to the current environment
	Stdin   string
}

// DefaultTimeout bounds commands whose caller does not set one.
const DefaultTimeout = 300 * time.Second

// Runner is the function type adapters depend on, so tests can substitute a
// fake executor.
type Runner func(ctx context.Context, name string, args []string, opts Options) Result

// Run executes a program and captures stdout/stderr. A missing binary or any
// spawn failure is reported through the Result (rc=-1), never as a panic.
// On timeout the process is killed, remaining output is drained and
// TimedOut is set.
func Run(ctx context.Context, name string, args []string, opts Options) Result {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmdStr := commandString(name, args)
	log.Debug().Str("command", cmdStr).Msg("Running command")

	err := cmd.Run()

	result := Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Command: cmdStr,
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ReturnCode = -1
		log.Warn().Str("command", cmdStr).Dur("timeout", timeout).Msg("Command timed out")
	case err == nil:
		result.ReturnCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ReturnCode = exitErr.ExitCode()
		} else {
			// Spawn-level failure (binary not found, permission denied)
			result.ReturnCode = -1
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
	}

	if !result.Success() && !result.TimedOut {
		log.Warn().
			Str("command", cmdStr).
			Int("returncode", result.ReturnCode).
			Str("stderr", truncate(result.Stderr, 500)).
			Msg("Command failed")
	}

	return result
}

// LookPath returns the full path of a binary found on PATH, or "".
func LookPath(binary string) string {
	path, err := exec.LookPath(binary)
	if err != nil {
		return ""
	}
	return path
}

// BinaryVersion invokes a binary with a version flag and returns the first
// non-empty output line, or "" when the invocation fails.
func BinaryVersion(ctx context.Context, binary, versionFlag string) string {
	if versionFlag == "" {
		versionFlag = "--version"
	}
	result := Run(ctx, binary, []string{versionFlag}, Options{Timeout: 10 * time.Second})
	if !result.Success() {
		return ""
	}
	for _, line := range strings.Split(result.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// QuotePath wraps a path in double quotes when it contains whitespace, for
// display in command strings.
func QuotePath(path string) string {
	if strings.ContainsAny(path, " \t") && !(strings.HasPrefix(path, `"`) && strings.HasSuffix(path, `"`)) {
		return `"` + path + `"`
	}
	return path
}

func commandString(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, QuotePath(name))
	for _, a := range args {
		parts = append(parts, QuotePath(a))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
