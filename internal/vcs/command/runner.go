// Package command is the single choke point for invoking external
// version-control tools. Every provider routes its process executions
// through a Runner so capture, logging and failure classification stay
// in one place.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const defaultTimeout = 10 * time.Minute

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Error is a failed external-tool invocation: the tool exited non-zero or
// could not be spawned (ExitCode -1). It is the only error class eligible
// for the providers' fallback-to-everything retry.
type Error struct {
	Name     string
	Args     []string
	WorkDir  string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (commandError *Error) Error() string {
	message := strings.TrimSpace(commandError.Stderr)
	if message == "" && commandError.Cause != nil {
		message = commandError.Cause.Error()
	}

	return fmt.Sprintf("%s %s failed with exit code %d: %s",
		commandError.Name, strings.Join(commandError.Args, " "), commandError.ExitCode, message)
}

func (commandError *Error) Unwrap() error {
	return commandError.Cause
}

// AsError returns the *Error in err's chain, or nil. Providers use it to
// decide fallback eligibility.
func AsError(err error) *Error {
	var commandError *Error
	if errors.As(err, &commandError) {
		return commandError
	}

	return nil
}

type Runner struct {
	Timeout time.Duration
	logger  *log.Logger
}

func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{Timeout: defaultTimeout, logger: logger}
}

// Run executes name with args in workingDir and captures the outcome. A
// non-zero exit is reported in the Result, not as an error; only a spawn
// failure yields a *Error (with ExitCode -1).
func (runner *Runner) Run(ctx context.Context, workingDir string, name string, args ...string) (Result, error) {
	if strings.TrimSpace(name) == "" {
		return Result{}, fmt.Errorf("command name cannot be empty")
	}

	if runner.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runner.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, name, args...)
	if workingDir != "" {
		execCmd.Dir = workingDir
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	runner.logger.Debug("running command", "name", name, "args", strings.Join(args, " "), "dir", workingDir)

	err := execCmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0}

	var exitError *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitError):
		result.ExitCode = exitError.ExitCode()
	default:
		return Result{}, &Error{
			Name:     name,
			Args:     args,
			WorkDir:  workingDir,
			ExitCode: -1,
			Cause:    err,
		}
	}

	return result, nil
}

// RunRequireSuccess is Run plus the assertion that the tool exited zero.
func (runner *Runner) RunRequireSuccess(ctx context.Context, workingDir string, name string, args ...string) (Result, error) {
	result, err := runner.Run(ctx, workingDir, name, args...)
	if err != nil {
		return Result{}, err
	}

	if result.ExitCode != 0 {
		return result, &Error{
			Name:     name,
			Args:     args,
			WorkDir:  workingDir,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}

	return result, nil
}
