// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/chr1043086360/envmatrix/internal/runtime"
	"github.com/chr1043086360/envmatrix/internal/venv"
	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

type (
	// stubProvisioner records Ensure calls and can fail selected envs.
	stubProvisioner struct {
		mu       sync.Mutex
		ensured  []string
		failWith map[string]error
	}

	// stubExecutor records executed envs and can fail selected commands.
	stubExecutor struct {
		mu       sync.Mutex
		executed []string
		failEnvs map[string]int
	}
)

func (p *stubProvisioner) Ensure(_ context.Context, cfg *matrixfile.EnvConfig, opts venv.EnsureOptions) (*venv.Env, error) {
	p.mu.Lock()
	p.ensured = append(p.ensured, cfg.Name)
	p.mu.Unlock()
	if err := p.failWith[cfg.Name]; err != nil {
		return nil, err
	}
	return &venv.Env{Name: cfg.Name, Dir: opts.Dir, BasePython: "python3"}, nil
}

func (e *stubExecutor) Execute(ctx *runtime.ExecutionContext) *runtime.Result {
	e.mu.Lock()
	e.executed = append(e.executed, ctx.Env.Name)
	e.mu.Unlock()
	if code, ok := e.failEnvs[ctx.Env.Name]; ok {
		return &runtime.Result{ExitCode: code, FailedCommand: ctx.Env.Commands[0].Line}
	}
	return &runtime.Result{}
}

func parseMatrix(t *testing.T, content string) *matrixfile.Matrixfile {
	t.Helper()
	mf, err := matrixfile.Parse(strings.NewReader(content), "")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return mf
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

const basicMatrix = `[tox]
envlist = py{36,37}-django20
[testenv]
commands = pytest
`

func TestRun_AllPass(t *testing.T) {
	t.Parallel()
	prov := &stubProvisioner{}
	exec := &stubExecutor{}
	orch := New(Options{
		File:        parseMatrix(t, basicMatrix),
		Log:         quietLogger(),
		Provisioner: prov,
		Executor:    exec,
	})

	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("expected 2 results, got %v", summary.Results)
	}
	for _, res := range summary.Results {
		if res.Status != StatusPassed {
			t.Errorf("env %s: expected passed, got %s", res.Name, res.Status)
		}
	}
	if !summary.Success(false) || !summary.Success(true) {
		t.Error("an all-green run is a success")
	}
}

func TestRun_CommandFailureIsEnvFailure(t *testing.T) {
	t.Parallel()
	exec := &stubExecutor{failEnvs: map[string]int{"py36-django20": 2}}
	orch := New(Options{
		File:        parseMatrix(t, basicMatrix),
		Log:         quietLogger(),
		Provisioner: &stubProvisioner{},
		Executor:    exec,
	})

	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.Success(false) {
		t.Error("a failed env must fail the run")
	}

	byName := make(map[string]EnvResult)
	for _, res := range summary.Results {
		byName[res.Name] = res
	}
	if byName["py36-django20"].Status != StatusFailed {
		t.Errorf("expected py36-django20 failed, got %s", byName["py36-django20"].Status)
	}
	if byName["py36-django20"].FailedCommand != "pytest" {
		t.Errorf("expected failed command recorded, got %q", byName["py36-django20"].FailedCommand)
	}
	// Environments are independent: the sibling still runs and passes.
	if byName["py37-django20"].Status != StatusPassed {
		t.Errorf("expected py37-django20 passed, got %s", byName["py37-django20"].Status)
	}
}

func TestRun_ExplicitSelection(t *testing.T) {
	t.Parallel()
	exec := &stubExecutor{}
	orch := New(Options{
		File:        parseMatrix(t, basicMatrix),
		Envs:        []string{"py37-django20"},
		Log:         quietLogger(),
		Provisioner: &stubProvisioner{},
		Executor:    exec,
	})

	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(summary.Results) != 1 || summary.Results[0].Name != "py37-django20" {
		t.Errorf("expected only the selected env, got %v", summary.Results)
	}
}

func TestRun_UnknownSelection(t *testing.T) {
	t.Parallel()
	orch := New(Options{
		File:        parseMatrix(t, basicMatrix),
		Envs:        []string{"py99"},
		Log:         quietLogger(),
		Provisioner: &stubProvisioner{},
		Executor:    &stubExecutor{},
	})

	if _, err := orch.Run(context.Background()); err == nil {
		t.Fatal("expected an unknown environment error")
	}
}

func TestRun_DependsOrderAndPropagation(t *testing.T) {
	t.Parallel()
	content := `[tox]
envlist = lint, py36, package
[testenv]
commands = pytest
[testenv:py36]
depends = lint
commands = pytest
[testenv:package]
depends = py36
commands = python -m build --sdist
`
	exec := &stubExecutor{failEnvs: map[string]int{"py36": 1}}
	orch := New(Options{
		File:        parseMatrix(t, content),
		Log:         quietLogger(),
		Provisioner: &stubProvisioner{},
		Executor:    exec,
	})

	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	byName := make(map[string]EnvResult)
	for _, res := range summary.Results {
		byName[res.Name] = res
	}
	if byName["lint"].Status != StatusPassed {
		t.Errorf("lint: expected passed, got %s", byName["lint"].Status)
	}
	if byName["py36"].Status != StatusFailed {
		t.Errorf("py36: expected failed, got %s", byName["py36"].Status)
	}
	if byName["package"].Status != StatusNotRun {
		t.Errorf("package: expected not run after its dependency failed, got %s", byName["package"].Status)
	}

	for _, name := range exec.executed {
		if name == "package" {
			t.Error("package must not execute when its dependency failed")
		}
	}
}

func TestRun_DependsCycleIsPlanningError(t *testing.T) {
	t.Parallel()
	content := `[tox]
envlist = a, b
[testenv]
commands = pytest
[testenv:a]
depends = b
commands = pytest
[testenv:b]
depends = a
commands = pytest
`
	orch := New(Options{
		File:        parseMatrix(t, content),
		Log:         quietLogger(),
		Provisioner: &stubProvisioner{},
		Executor:    &stubExecutor{},
	})

	_, err := orch.Run(context.Background())
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestRun_MissingInterpreterSkips(t *testing.T) {
	t.Parallel()
	prov := &stubProvisioner{failWith: map[string]error{
		"py36-django20": &venv.InterpreterNotFoundError{Name: "python3.6", Env: "py36-django20"},
	}}
	orch := New(Options{
		File:                    parseMatrix(t, basicMatrix),
		SkipMissingInterpreters: true,
		Log:                     quietLogger(),
		Provisioner:             prov,
		Executor:                &stubExecutor{},
	})

	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	byName := make(map[string]EnvResult)
	for _, res := range summary.Results {
		byName[res.Name] = res
	}
	if byName["py36-django20"].Status != StatusSkipped {
		t.Errorf("expected skipped, got %s", byName["py36-django20"].Status)
	}
	if !summary.Success(false) {
		t.Error("skips are not failures by default")
	}
	if summary.Success(true) {
		t.Error("fail-on-skip must turn skips into failures")
	}
}

func TestRun_MissingInterpreterFailsWithoutSkipSetting(t *testing.T) {
	t.Parallel()
	prov := &stubProvisioner{failWith: map[string]error{
		"py36-django20": &venv.InterpreterNotFoundError{Name: "python3.6", Env: "py36-django20"},
	}}
	orch := New(Options{
		File:        parseMatrix(t, basicMatrix),
		Log:         quietLogger(),
		Provisioner: prov,
		Executor:    &stubExecutor{},
	})

	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, res := range summary.Results {
		if res.Name == "py36-django20" && res.Status != StatusFailed {
			t.Errorf("expected failed, got %s", res.Status)
		}
	}
}

func TestRun_ParallelLevelRunsEverything(t *testing.T) {
	t.Parallel()
	exec := &stubExecutor{}
	orch := New(Options{
		File:        parseMatrix(t, basicMatrix),
		Parallel:    2,
		Log:         quietLogger(),
		Provisioner: &stubProvisioner{},
		Executor:    exec,
	})

	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("expected 2 results, got %v", summary.Results)
	}
	if !summary.Success(false) {
		t.Errorf("expected success, got %+v", summary.Results)
	}
	if len(exec.executed) != 2 {
		t.Errorf("expected both envs executed, got %v", exec.executed)
	}
}
