// Package process runs the external CLIs this tool delegates to.
package process

//go:generate moq -stub -out runner_mock.go . Runner:RunnerMock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/newhook/cifail/internal/logging"
)

// DefaultTimeout bounds every external command that does not set its own.
const DefaultTimeout = 30 * time.Second

var (
	// ErrCommandNotFound is returned when the executable is not on PATH.
	ErrCommandNotFound = errors.New("command not found")
	// ErrTimeout is returned when a command exceeds its timeout.
	ErrTimeout = errors.New("command timed out")
)

// InstallHints maps executables to a short install instruction.
var InstallHints = map[string]string{
	"gh": "GitHub CLI - install with: brew install gh",
	"bk": "Buildkite CLI - install with: brew install buildkite/buildkite/bk@3",
}

// Command describes one invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Timeout overrides the runner default when positive.
	Timeout time.Duration
}

// String renders the command as a shell-quoted line for logs and errors.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for i, a := range c.Args {
		if i > 0 && c.Args[i-1] == "--token" {
			a = "***"
		}
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// Result holds what a finished command produced.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// NotFoundError reports a missing executable together with an install hint.
type NotFoundError struct {
	Name string
	Hint string
}

func (e *NotFoundError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s not found (%s)", e.Name, e.Hint)
	}
	return fmt.Sprintf("%s not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrCommandNotFound
}

// ExitError reports a command that ran but exited non-zero. The Result is
// still returned alongside it so callers can inspect stdout.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, msg)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner returns a runner using timeout as the per-command default.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

// Run executes cmd and waits for it. A non-zero exit yields *ExitError along
// with the captured output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return Result{}, &NotFoundError{Name: cmd.Name, Hint: InstallHints[cmd.Name]}
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	logging.Debug("ran command",
		"command", cmd.String(),
		"duration", time.Since(start).String(),
		"error", err)

	if err == nil {
		return res, nil
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%s: %w after %s", cmd.Name, ErrTimeout, timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return res, fmt.Errorf("%s: %w", cmd.Name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Command: cmd.Name, ExitCode: res.ExitCode, Stderr: stderr.String()}
	}
	return res, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
}

// CheckInstalled returns a *NotFoundError for the first missing executable.
func CheckInstalled(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return &NotFoundError{Name: name, Hint: InstallHints[name]}
		}
	}
	return nil
}

// quote wraps an argument in single quotes when the shell would split or
// expand it.
func quote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"$`\\*?[]{}()<>|&;#~") {
		return arg
	}
	// Replace single quotes with '\'' (end quote, escaped quote, start quote)
	return "'" + strings.ReplaceAll(arg, "'", "'\\''") + "'"
}
