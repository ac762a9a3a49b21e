// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ShellRuntime runs command lines through the embedded POSIX shell
// interpreter. No external shell binary is involved, so pipes, redirects
// and globs behave identically on every platform.
type ShellRuntime struct {
	// Log receives warnings about ignored failures.
	Log *log.Logger
}

// NewShellRuntime creates the built-in shell runtime.
func NewShellRuntime() *ShellRuntime {
	return &ShellRuntime{}
}

// Name returns the runtime name.
func (r *ShellRuntime) Name() string { return string(TypeShell) }

// Available reports whether this runtime can run; the interpreter is
// compiled in, so it always can.
func (r *ShellRuntime) Available() bool { return true }

// Validate parses every command line up front so syntax errors surface
// before anything runs.
func (r *ShellRuntime) Validate(ctx *ExecutionContext) error {
	if len(ctx.Env.Commands) == 0 {
		return fmt.Errorf("environment %q has no commands", ctx.Env.Name)
	}
	parser := syntax.NewParser()
	for _, cmd := range ctx.Env.Commands {
		if _, err := parser.Parse(strings.NewReader(cmd.Line), cmd.Line); err != nil {
			return fmt.Errorf("environment %q: command syntax error: %w", ctx.Env.Name, err)
		}
	}
	return nil
}

// Execute runs the sequence in order, aborting at the first hard failure.
func (r *ShellRuntime) Execute(ctx *ExecutionContext) *Result {
	parser := syntax.NewParser()
	result := &Result{}

	for _, command := range ctx.Env.Commands {
		prog, err := parser.Parse(strings.NewReader(command.Line), command.Line)
		if err != nil {
			return &Result{ExitCode: 1, Error: fmt.Errorf("parse command %q: %w", command.Line, err), FailedCommand: command.Line, Commands: result.Commands}
		}

		runner, err := interp.New(
			interp.Dir(ctx.WorkDir),
			interp.Env(expand.ListEnviron(EnvToSlice(ctx.Environ)...)),
			interp.StdIO(ctx.Stdin, ctx.Stdout, ctx.Stderr),
		)
		if err != nil {
			return &Result{ExitCode: 1, Error: fmt.Errorf("create interpreter: %w", err), FailedCommand: command.Line, Commands: result.Commands}
		}

		execCtx := ctx.Context
		if execCtx == nil {
			execCtx = context.Background()
		}

		exitCode := 0
		if err := runner.Run(execCtx, prog); err != nil {
			var exitStatus interp.ExitStatus
			if !errors.As(err, &exitStatus) {
				return &Result{ExitCode: 1, Error: fmt.Errorf("run %q: %w", command.Line, err), FailedCommand: command.Line, Commands: result.Commands}
			}
			exitCode = int(exitStatus)
		}

		record := CommandResult{Line: command.Line, ExitCode: exitCode}
		if exitCode != 0 {
			if !command.IgnoreExitCode {
				result.Commands = append(result.Commands, record)
				result.ExitCode = exitCode
				result.FailedCommand = command.Line
				return result
			}
			record.Ignored = true
			r.logger().Warn("command failed (ignored)", "env", ctx.Env.Name, "command", command.Line, "exit", exitCode)
		}
		result.Commands = append(result.Commands, record)
	}
	return result
}

func (r *ShellRuntime) logger() *log.Logger {
	if r.Log != nil {
		return r.Log
	}
	return log.Default()
}
