// SPDX-License-Identifier: MPL-2.0

// Package runtime executes an environment's command sequence. Two runtimes
// exist: direct process execution (the default) and the built-in shell
// interpreter (use_shell = true).
package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

// Runtime type constants.
const (
	TypeExec  Type = "exec"
	TypeShell Type = "shell"
)

type (
	// Type identifies a runtime implementation.
	Type string

	// ExecutionContext contains everything needed to run one
	// environment's command sequence.
	ExecutionContext struct {
		// Context is the Go context for cancellation.
		Context context.Context
		// Env is the resolved environment configuration.
		Env *matrixfile.EnvConfig
		// EnvDir is the environment directory (VIRTUAL_ENV).
		EnvDir string
		// BinDir is the environment's executable directory, consulted
		// before PATH when resolving commands.
		BinDir string
		// WorkDir is the working directory for commands.
		WorkDir string
		// Environ is the fully built child environment.
		Environ map[string]string
		// Stdout, Stderr, Stdin are the command streams.
		Stdout io.Writer
		Stderr io.Writer
		Stdin  io.Reader
	}

	// CommandResult records the outcome of one command in the sequence.
	CommandResult struct {
		// Line is the command line as resolved.
		Line string
		// ExitCode is the command's exit status.
		ExitCode int
		// Ignored is set when a non-zero exit was tolerated ("-" prefix).
		Ignored bool
	}

	// Result is the outcome of an environment's command sequence.
	Result struct {
		// ExitCode is 0 on success, otherwise the exit code of the
		// first hard-failing command (or 1 for setup errors).
		ExitCode int
		// Error is a non-exit-status failure (spawn error, bad line).
		Error error
		// FailedCommand is the line that failed the environment.
		FailedCommand string
		// Commands are the per-command records, in execution order.
		// Commands after the first hard failure never run and have
		// no record.
		Commands []CommandResult
	}

	// Runtime runs an environment's command sequence.
	Runtime interface {
		// Name returns the runtime name.
		Name() string
		// Available reports whether the runtime can run here.
		Available() bool
		// Validate checks the context before execution.
		Validate(ctx *ExecutionContext) error
		// Execute runs the command sequence.
		Execute(ctx *ExecutionContext) *Result
	}

	// Registry holds the known runtimes.
	Registry struct {
		runtimes map[Type]Runtime
	}
)

// Success reports whether the sequence completed without a hard failure.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Error == nil
}

// NewRegistry creates a registry with the default runtimes registered.
func NewRegistry() *Registry {
	r := &Registry{runtimes: make(map[Type]Runtime)}
	r.Register(TypeExec, NewExecRuntime())
	r.Register(TypeShell, NewShellRuntime())
	return r
}

// Register adds or replaces a runtime.
func (r *Registry) Register(typ Type, rt Runtime) {
	r.runtimes[typ] = rt
}

// Get returns a runtime by type.
func (r *Registry) Get(typ Type) (Runtime, error) {
	rt, ok := r.runtimes[typ]
	if !ok {
		return nil, fmt.Errorf("runtime %q not registered", typ)
	}
	return rt, nil
}

// ForEnv returns the runtime an environment's configuration selects.
func (r *Registry) ForEnv(cfg *matrixfile.EnvConfig) (Runtime, error) {
	if cfg.UseShell {
		return r.Get(TypeShell)
	}
	return r.Get(TypeExec)
}

// Execute validates and runs the sequence with the selected runtime.
func (r *Registry) Execute(ctx *ExecutionContext) *Result {
	rt, err := r.ForEnv(ctx.Env)
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}
	if !rt.Available() {
		return &Result{ExitCode: 1, Error: fmt.Errorf("runtime %q is not available on this system", rt.Name())}
	}
	if err := rt.Validate(ctx); err != nil {
		return &Result{ExitCode: 1, Error: err}
	}
	return rt.Execute(ctx)
}

// EnvToSlice converts an environment map to KEY=VALUE form.
func EnvToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
