package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// CommandResult is the outcome of a one-shot command that exited zero.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Executor runs commands to completion. It keeps no per-command state and is
// safe for concurrent use.
type Executor struct {
	shell  string
	logger *zap.Logger

	// OnFinish, when set, is called after every Run with an outcome of
	// "success", "failed", "spawn_error" or "canceled".
	OnFinish func(outcome string, elapsed time.Duration)
}

func NewExecutor(shell string, logger *zap.Logger) *Executor {
	if shell == "" {
		shell = defaultShell
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{shell: shell, logger: logger}
}

// Run spawns `<shell> -c <command>` with stdout and stderr merged, reads the
// whole stream and waits for exit. Every output line is terminated by "\n".
// A non-zero exit yields *CommandFailedError. Cancelling ctx kills the
// process group.
func (e *Executor) Run(ctx context.Context, command, workDir string) (res CommandResult, err error) {
	start := time.Now()
	defer func() {
		if e.OnFinish != nil {
			e.OnFinish(outcomeOf(err), time.Since(start))
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return CommandResult{}, fmt.Errorf("run %q: %w", command, ctxErr)
	}

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	cmd.Dir = workDir
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	proc, err := startPiped(cmd, false)
	if err != nil {
		return CommandResult{}, &SpawnError{Command: command, Err: err}
	}

	output, readErr := readLines(proc.output)
	proc.closeOutput()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return CommandResult{}, fmt.Errorf("run %q: %w", command, ctxErr)
	}
	if readErr != nil {
		e.logger.Warn("reading command output failed",
			zap.String("command", command),
			zap.Error(readErr),
		)
	}

	code := cmd.ProcessState.ExitCode()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return CommandResult{}, fmt.Errorf("wait for %q: %w", command, waitErr)
		}
	}
	if code != 0 {
		return CommandResult{}, &CommandFailedError{ExitCode: code, Output: output}
	}
	return CommandResult{ExitCode: 0, Output: output}, nil
}

// readLines drains r, normalizing line endings to "\n" and terminating the
// final line even when the stream does not.
func readLines(r io.Reader) (string, error) {
	var b strings.Builder
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCommandFailed):
		return "failed"
	case errors.Is(err, ErrProcessSpawn):
		return "spawn_error"
	default:
		return "canceled"
	}
}
