// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/chr1043086360/envmatrix/internal/issue"
	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

// fingerprintFile records the dependency fingerprint of a provisioned env.
const fingerprintFile = ".fingerprint"

type (
	// Provisioner creates and reuses environment directories.
	Provisioner struct {
		// Log receives provisioning progress. Defaults to log.Default().
		Log *log.Logger
		// Stdout and Stderr receive installer output. Default to the
		// process streams.
		Stdout io.Writer
		Stderr io.Writer
	}

	// EnsureOptions controls one Ensure call.
	EnsureOptions struct {
		// Dir is the environment directory to provision.
		Dir string
		// ProjectDir is installed into the env (pip install -e) unless
		// the env sets skip_install. Empty disables project install.
		ProjectDir string
		// Recreate forces a rebuild even when the fingerprint matches.
		Recreate bool
	}
)

func (p *Provisioner) logger() *log.Logger {
	if p.Log != nil {
		return p.Log
	}
	return log.Default()
}

// Ensure makes the environment directory ready: existing envs with a
// matching dependency fingerprint are reused, anything else is rebuilt from
// scratch. Unsatisfiable dependency constraints abort provisioning before
// the installer runs.
func (p *Provisioner) Ensure(ctx context.Context, cfg *matrixfile.EnvConfig, opts EnsureOptions) (*Env, error) {
	for _, dep := range cfg.Deps {
		if err := dep.CheckSatisfiable(); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("resolve dependencies").
				WithResource(cfg.Name).
				WithSuggestion("Fix the version constraints in the deps list").
				Wrap(err).
				BuildError()
		}
	}

	interpreter := InterpreterFor(cfg)
	basePython, err := LookupInterpreter(interpreter, cfg.Name)
	if err != nil {
		return nil, err
	}

	env := &Env{Name: cfg.Name, Dir: opts.Dir, BasePython: basePython}
	fingerprint := Fingerprint(basePython, cfg.Deps)

	if !opts.Recreate && !cfg.Recreate && p.fingerprintMatches(opts.Dir, fingerprint) {
		p.logger().Debug("reusing environment", "env", cfg.Name, "dir", opts.Dir)
		return env, nil
	}

	if err := os.RemoveAll(opts.Dir); err != nil {
		return nil, fmt.Errorf("remove stale environment %s: %w", opts.Dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Dir), 0o755); err != nil {
		return nil, fmt.Errorf("create environment root: %w", err)
	}

	p.logger().Info("creating environment", "env", cfg.Name, "python", basePython)
	if err := p.run(ctx, "", basePython, "-m", "venv", opts.Dir); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("create virtualenv").
			WithResource(opts.Dir).
			WithSuggestion("Check that the interpreter ships the venv module").
			Wrap(err).
			BuildError()
	}

	if err := p.install(ctx, env, cfg, opts); err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(opts.Dir, fingerprintFile), []byte(fingerprint), 0o644); err != nil {
		return nil, fmt.Errorf("write environment fingerprint: %w", err)
	}
	return env, nil
}

func (p *Provisioner) install(ctx context.Context, env *Env, cfg *matrixfile.EnvConfig, opts EnsureOptions) error {
	if len(cfg.Deps) > 0 {
		args := []string{"install"}
		for _, dep := range cfg.Deps {
			if dep.IsFlag {
				args = append(args, strings.Fields(dep.Raw)...)
				continue
			}
			args = append(args, dep.Raw)
		}
		p.logger().Info("installing dependencies", "env", cfg.Name, "count", len(cfg.Deps))
		if err := p.run(ctx, env.Dir, env.Pip(), args...); err != nil {
			return issue.NewErrorContext().
				WithOperation("install dependencies").
				WithResource(cfg.Name).
				WithSuggestion("Check that every version constraint is installable").
				Wrap(err).
				BuildError()
		}
	}

	if opts.ProjectDir != "" && !cfg.SkipInstall {
		p.logger().Info("installing project", "env", cfg.Name)
		if err := p.run(ctx, env.Dir, env.Pip(), "install", "-e", opts.ProjectDir); err != nil {
			return issue.NewErrorContext().
				WithOperation("install project").
				WithResource(opts.ProjectDir).
				Wrap(err).
				BuildError()
		}
	}
	return nil
}

func (p *Provisioner) run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

func (p *Provisioner) fingerprintMatches(dir, fingerprint string) bool {
	data, err := os.ReadFile(filepath.Join(dir, fingerprintFile))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == fingerprint
}

// Fingerprint derives the reuse key of an environment from its interpreter
// path and ordered dependency lines.
func Fingerprint(interpreter string, deps []matrixfile.Requirement) string {
	h := sha256.New()
	io.WriteString(h, interpreter)
	io.WriteString(h, "\n")
	for _, dep := range deps {
		io.WriteString(h, dep.Raw)
		io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}
