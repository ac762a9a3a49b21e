// SPDX-License-Identifier: MPL-2.0

// Package orchestrator runs the environment matrix: it selects environments,
// orders them by their depends edges, provisions each one, and executes the
// command sequences, sequentially or in bounded parallel waves.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/chr1043086360/envmatrix/internal/runtime"
	"github.com/chr1043086360/envmatrix/internal/venv"
	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

// Environment outcome statuses.
const (
	// StatusPassed means every command exited zero (or was ignored).
	StatusPassed Status = "passed"
	// StatusFailed means provisioning or a command failed.
	StatusFailed Status = "failed"
	// StatusSkipped means the interpreter was missing and
	// skip_missing_interpreters downgraded the failure.
	StatusSkipped Status = "skipped"
	// StatusNotRun means a dependency failed, so the environment never started.
	StatusNotRun Status = "not run"
)

type (
	// Status is the outcome of one environment.
	Status string

	// EnvResult records one environment's outcome.
	EnvResult struct {
		// Name is the environment name.
		Name string
		// Status is the outcome.
		Status Status
		// Duration covers provisioning plus command execution.
		Duration time.Duration
		// FailedCommand is the command line that failed the environment,
		// when one did.
		FailedCommand string
		// Err carries the provisioning or execution error, if any.
		Err error
	}

	// Summary aggregates the whole run.
	Summary struct {
		// Results holds one entry per selected environment, in run order.
		Results []EnvResult
		// Duration is the wall time of the whole run.
		Duration time.Duration
	}

	// Provisioner prepares an environment directory before commands run.
	// *venv.Provisioner is the production implementation.
	Provisioner interface {
		Ensure(ctx context.Context, cfg *matrixfile.EnvConfig, opts venv.EnsureOptions) (*venv.Env, error)
	}

	// Executor runs a resolved environment's command sequence.
	// *runtime.Registry is the production implementation.
	Executor interface {
		Execute(ctx *runtime.ExecutionContext) *runtime.Result
	}

	// Options configures a run.
	Options struct {
		// File is the parsed matrix file. Required.
		File *matrixfile.Matrixfile
		// Envs selects a subset of environments. Empty means the full
		// envlist. Names must be known (envlist or explicit section).
		Envs []string
		// PosArgs replaces {posargs} in commands.
		PosArgs []string
		// Parallel is the maximum number of environments running at
		// once. Values below 2 mean sequential execution.
		Parallel int
		// Recreate forces environment rebuilds.
		Recreate bool
		// WorkDir overrides the root holding environment directories.
		// Empty means <matrix file dir>/.envmatrix.
		WorkDir string
		// SkipMissingInterpreters downgrades missing interpreters to
		// skips even when the matrix file does not request it.
		SkipMissingInterpreters bool

		// Log receives run progress. Defaults to log.Default().
		Log *log.Logger
		// Stdout, Stderr and Stdin are handed to environment commands.
		// Default to the process streams.
		Stdout io.Writer
		Stderr io.Writer
		Stdin  io.Reader

		// Provisioner overrides environment provisioning (tests).
		Provisioner Provisioner
		// Executor overrides command execution (tests).
		Executor Executor
	}

	// Orchestrator runs the matrix described by its options.
	Orchestrator struct {
		opts        Options
		log         *log.Logger
		provisioner Provisioner
		executor    Executor
		skipMissing bool
	}

	// resolvedEnv pairs an environment's resolved configuration with the
	// directories it will occupy.
	resolvedEnv struct {
		cfg    *matrixfile.EnvConfig
		dir    string
		binDir string
	}
)

// Success reports whether the run as a whole passed: every environment
// passed, or was skipped while failOnSkip is unset. A not-run environment
// counts as a failure because its dependency chain broke.
func (s *Summary) Success(failOnSkip bool) bool {
	for _, r := range s.Results {
		switch r.Status {
		case StatusPassed:
		case StatusSkipped:
			if failOnSkip {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Counts returns how many environments ended in each status.
func (s *Summary) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}

// New creates an orchestrator. Zero-value option fields get production
// defaults.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts:        opts,
		log:         opts.Log,
		provisioner: opts.Provisioner,
		executor:    opts.Executor,
	}
	if o.log == nil {
		o.log = log.Default()
	}
	if o.provisioner == nil {
		o.provisioner = &venv.Provisioner{Log: o.log, Stdout: opts.Stdout, Stderr: opts.Stderr}
	}
	if o.executor == nil {
		registry := runtime.NewRegistry()
		registry.Register(runtime.TypeExec, &runtime.ExecRuntime{Log: o.log})
		registry.Register(runtime.TypeShell, &runtime.ShellRuntime{Log: o.log})
		o.executor = registry
	}
	o.skipMissing = opts.SkipMissingInterpreters || opts.File.Core.SkipMissingInterpreters
	return o
}

// Run executes the selected environments and returns the aggregated summary.
// A non-nil error means the run could not be planned (unknown environment,
// resolution failure, depends cycle); environment failures are reported
// through the summary, not the error.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	names, err := o.selectEnvs()
	if err != nil {
		return nil, err
	}

	workRoot := o.opts.WorkDir
	if workRoot == "" {
		workRoot = filepath.Join(o.opts.File.BaseDir(), venv.WorkDirName)
	}

	resolved := make(map[string]*resolvedEnv, len(names))
	for _, name := range names {
		r, err := o.resolveEnv(name, workRoot)
		if err != nil {
			return nil, err
		}
		resolved[name] = r
	}

	levels, err := o.planOrder(names, resolved)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]Status, len(names))
	results := make(map[string]EnvResult, len(names))

	for _, level := range levels {
		if o.opts.Parallel > 1 && len(level) > 1 {
			o.runLevelParallel(ctx, level, resolved, statuses, results)
		} else {
			for _, name := range level {
				res := o.runOne(ctx, resolved[name], statuses)
				statuses[name] = res.Status
				results[name] = res
			}
		}
	}

	summary := &Summary{Duration: time.Since(started)}
	for _, name := range names {
		summary.Results = append(summary.Results, results[name])
	}
	return summary, nil
}

// runLevelParallel runs one dependency level with at most Parallel
// environments in flight. Environments within a level are independent, so
// each goroutine owns its own result slot.
func (o *Orchestrator) runLevelParallel(ctx context.Context, level []string, resolved map[string]*resolvedEnv, statuses map[string]Status, results map[string]EnvResult) {
	slots := make([]EnvResult, len(level))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallel)
	for i, name := range level {
		g.Go(func() error {
			slots[i] = o.runOne(gctx, resolved[name], statuses)
			return nil
		})
	}
	_ = g.Wait() // goroutines report through their result slots
	for i, name := range level {
		statuses[name] = slots[i].Status
		results[name] = slots[i]
	}
}

// runOne provisions one environment and runs its commands, translating the
// outcome into an EnvResult.
func (o *Orchestrator) runOne(ctx context.Context, r *resolvedEnv, statuses map[string]Status) EnvResult {
	name := r.cfg.Name
	result := EnvResult{Name: name}
	started := time.Now()
	defer func() { result.Duration = time.Since(started) }()

	for _, dep := range r.cfg.Depends {
		switch statuses[dep] {
		case StatusFailed, StatusNotRun:
			result.Status = StatusNotRun
			result.Err = fmt.Errorf("dependency %q did not pass", dep)
			o.log.Warn("environment not run", "env", name, "dependency", dep)
			return result
		}
	}

	o.log.Info("environment starting", "env", name)
	env, err := o.provisioner.Ensure(ctx, r.cfg, venv.EnsureOptions{
		Dir:        r.dir,
		ProjectDir: o.opts.File.BaseDir(),
		Recreate:   o.opts.Recreate,
	})
	if err != nil {
		if o.skipMissing && errors.Is(err, venv.ErrInterpreterNotFound) {
			result.Status = StatusSkipped
			result.Err = err
			o.log.Warn("environment skipped", "env", name, "reason", err)
			return result
		}
		result.Status = StatusFailed
		result.Err = err
		o.log.Error("environment provisioning failed", "env", name, "error", err)
		return result
	}

	execResult := o.executor.Execute(&runtime.ExecutionContext{
		Context: ctx,
		Env:     r.cfg,
		EnvDir:  env.Dir,
		BinDir:  env.BinDir(),
		WorkDir: o.workDirFor(r.cfg),
		Environ: runtime.BuildEnviron(r.cfg, env.Dir, env.BinDir()),
		Stdout:  o.stdout(),
		Stderr:  o.stderr(),
		Stdin:   o.opts.Stdin,
	})
	if !execResult.Success() {
		result.Status = StatusFailed
		result.FailedCommand = execResult.FailedCommand
		result.Err = execResult.Error
		if result.Err == nil {
			result.Err = fmt.Errorf("command exited with code %d", execResult.ExitCode)
		}
		o.log.Error("environment failed", "env", name, "command", execResult.FailedCommand)
		return result
	}

	result.Status = StatusPassed
	o.log.Info("environment passed", "env", name, "commands", len(execResult.Commands))
	return result
}

// selectEnvs returns the environments to run: the explicit selection when
// given, otherwise the full envlist.
func (o *Orchestrator) selectEnvs() ([]string, error) {
	if len(o.opts.Envs) == 0 {
		names := o.opts.File.EnvNames()
		if len(names) == 0 {
			return nil, errors.New("envlist is empty and no environments were selected")
		}
		return names, nil
	}

	var unknown []string
	for _, name := range o.opts.Envs {
		if !o.opts.File.KnownEnv(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown environment(s): %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(o.opts.File.EnvNames(), ", "))
	}
	return append([]string(nil), o.opts.Envs...), nil
}

// resolveEnv resolves one environment's configuration with its eventual
// directories already substituted in.
func (o *Orchestrator) resolveEnv(name, workRoot string) (*resolvedEnv, error) {
	dir := filepath.Join(workRoot, name)
	env := &venv.Env{Name: name, Dir: dir}

	cfg, err := o.opts.File.Env(name, matrixfile.Substitutions{
		PosArgs:   o.opts.PosArgs,
		EnvDir:    dir,
		EnvBinDir: env.BinDir(),
		EnvPython: env.Python(),
	})
	if err != nil {
		return nil, err
	}
	return &resolvedEnv{cfg: cfg, dir: dir, binDir: env.BinDir()}, nil
}

// planOrder turns depends edges into dependency levels. Depends targets
// outside the selection only order the run when they are selected too; a
// target that is not a known environment at all is an error.
func (o *Orchestrator) planOrder(names []string, resolved map[string]*resolvedEnv) ([][]string, error) {
	g := newGraph()
	for _, name := range names {
		g.addNode(name)
	}
	for _, name := range names {
		for _, dep := range resolved[name].cfg.Depends {
			if !o.opts.File.KnownEnv(dep) {
				return nil, fmt.Errorf("environment %q depends on unknown environment %q", name, dep)
			}
			if _, selected := resolved[dep]; selected {
				g.addEdge(dep, name)
			}
		}
	}
	return g.levels()
}

// workDirFor resolves the command working directory: changedir relative to
// the matrix file directory unless absolute, defaulting to that directory.
func (o *Orchestrator) workDirFor(cfg *matrixfile.EnvConfig) string {
	base := o.opts.File.BaseDir()
	if cfg.ChangeDir == "" {
		return base
	}
	if filepath.IsAbs(cfg.ChangeDir) {
		return cfg.ChangeDir
	}
	return filepath.Join(base, cfg.ChangeDir)
}

func (o *Orchestrator) stdout() io.Writer {
	if o.opts.Stdout != nil {
		return o.opts.Stdout
	}
	return os.Stdout
}

func (o *Orchestrator) stderr() io.Writer {
	if o.opts.Stderr != nil {
		return o.opts.Stderr
	}
	return os.Stderr
}
