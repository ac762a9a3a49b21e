// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"

	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

// ExecRuntime executes each command line as a direct process, resolving the
// executable against the environment's bin directory before PATH.
type ExecRuntime struct {
	// Log receives warnings about external commands.
	Log *log.Logger
}

// NewExecRuntime creates the default exec runtime.
func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{}
}

// Name returns the runtime name.
func (r *ExecRuntime) Name() string { return string(TypeExec) }

// Available reports whether this runtime can run; process execution always can.
func (r *ExecRuntime) Available() bool { return true }

// Validate checks that every command line splits into at least one field.
func (r *ExecRuntime) Validate(ctx *ExecutionContext) error {
	if len(ctx.Env.Commands) == 0 {
		return fmt.Errorf("environment %q has no commands", ctx.Env.Name)
	}
	for _, cmd := range ctx.Env.Commands {
		fields, err := splitCommand(cmd, ctx.Environ)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("environment %q: command %q is empty after expansion", ctx.Env.Name, cmd.Line)
		}
	}
	return nil
}

// Execute runs the sequence in order, aborting at the first hard failure.
func (r *ExecRuntime) Execute(ctx *ExecutionContext) *Result {
	result := &Result{}
	for _, command := range ctx.Env.Commands {
		fields, err := splitCommand(command, ctx.Environ)
		if err != nil {
			return &Result{ExitCode: 1, Error: err, FailedCommand: command.Line, Commands: result.Commands}
		}

		argv0, err := r.resolveExecutable(ctx, fields[0])
		if err != nil {
			return &Result{ExitCode: 1, Error: err, FailedCommand: command.Line, Commands: result.Commands}
		}

		cmd := exec.CommandContext(ctx.Context, argv0, fields[1:]...)
		cmd.Dir = ctx.WorkDir
		cmd.Env = EnvToSlice(ctx.Environ)
		cmd.Stdout = ctx.Stdout
		cmd.Stderr = ctx.Stderr
		cmd.Stdin = ctx.Stdin

		exitCode := 0
		if err := cmd.Run(); err != nil {
			exitErr, ok := err.(*exec.ExitError)
			if !ok {
				return &Result{ExitCode: 1, Error: fmt.Errorf("run %q: %w", command.Line, err), FailedCommand: command.Line, Commands: result.Commands}
			}
			exitCode = exitErr.ExitCode()
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

// resolveExecutable locates a command: the environment's bin directory wins
// over PATH. External commands not named in allowlist_externals fail when an
// allowlist is declared and are only warned about otherwise, matching the
// original tool's lenient default.
func (r *ExecRuntime) resolveExecutable(ctx *ExecutionContext, name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	candidate := filepath.Join(ctx.BinDir, name)
	if goruntime.GOOS == "windows" {
		if p, ok := statExecutable(candidate + ".exe"); ok {
			return p, nil
		}
	}
	if p, ok := statExecutable(candidate); ok {
		return p, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("command %q not found in %s or on PATH", name, ctx.BinDir)
	}
	if !allowlisted(name, ctx.Env) {
		if len(ctx.Env.AllowlistExternals) > 0 {
			return "", fmt.Errorf("external command %q is not in allowlist_externals", name)
		}
		r.logger().Warn("running external command", "env", ctx.Env.Name, "command", name, "path", path)
	}
	return path, nil
}

func (r *ExecRuntime) logger() *log.Logger {
	if r.Log != nil {
		return r.Log
	}
	return log.Default()
}

func allowlisted(name string, cfg *matrixfile.EnvConfig) bool {
	for _, allowed := range cfg.AllowlistExternals {
		if allowed == "*" || allowed == name {
			return true
		}
	}
	return false
}

func statExecutable(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// splitCommand splits a command line with shell quoting rules, expanding
// $VAR references against the child environment.
func splitCommand(cmd matrixfile.Command, environ map[string]string) ([]string, error) {
	fields, err := shell.Fields(cmd.Line, func(name string) string {
		return environ[name]
	})
	if err != nil {
		return nil, fmt.Errorf("split command %q: %w", cmd.Line, err)
	}
	return fields, nil
}
