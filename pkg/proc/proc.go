// Copyright 2026 BWI GmbH and Shipyard contributors
// SPDX-License-Identifier: Apache-2.0

// Package proc is the gateway to external commands. Every docker, kubectl
// and git invocation goes through a Runner, which captures combined output
// and maps non-zero exits to a uniform error type.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.opendefense.cloud/shipyard/pkg/logging"
)

// Command describes a single external command invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are the command arguments.
	Args []string
	// Stdin is fed to the command's standard input when non-nil.
	Stdin []byte
	// ExitFilter, when set, accepts specific non-zero exit codes as
	// success. kubectl diff exits 1 when a difference exists.
	ExitFilter func(code int) bool
	// Interactive attaches the command to the caller's terminal instead of
	// capturing output.
	Interactive bool
}

// CommandError reports a failed external command together with its captured
// output.
type CommandError struct {
	Command string
	Output  []byte
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed", e.Command)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes external commands. Implementations must block until the
// command has completed.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

type execRunner struct{}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	logger := logging.LoggerFromContext(ctx)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	logger.V(1).Info("running command", "command", commandLine(c))

	if c.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return nil, &CommandError{Command: c.Name, Err: err}
		}
		return nil, nil
	}

	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && c.ExitFilter != nil && c.ExitFilter(exitErr.ExitCode()) {
			return output, nil
		}
		logger.Error(err, "command failed", "command", c.Name, "output", string(output))
		return nil, &CommandError{Command: c.Name, Output: output, Err: err}
	}

	logger.V(2).Info("command output", "command", c.Name, "output", string(output))
	return output, nil
}

func commandLine(c Command) string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}
