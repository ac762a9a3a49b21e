// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

func TestEnsure_UnsatisfiableDepsAbortBeforeInstall(t *testing.T) {
	t.Parallel()
	req, err := matrixfile.ParseRequirement("Django>=2.0,<1.11")
	if err != nil {
		t.Fatalf("ParseRequirement returned error: %v", err)
	}
	cfg := &matrixfile.EnvConfig{
		Name:    "py36-django111",
		Factors: []string{"py36", "django111"},
		Deps:    []matrixfile.Requirement{req},
	}

	p := &Provisioner{}
	dir := filepath.Join(t.TempDir(), "py36-django111")
	_, err = p.Ensure(context.Background(), cfg, EnsureOptions{Dir: dir})
	if err == nil {
		t.Fatal("expected unsatisfiable dependency error")
	}
	var unsat *matrixfile.UnsatisfiableError
	if !errors.As(err, &unsat) {
		t.Errorf("expected UnsatisfiableError in chain, got %v", err)
	}
}

func TestEnsure_MissingInterpreter(t *testing.T) {
	t.Parallel()
	cfg := &matrixfile.EnvConfig{
		Name:       "py36",
		Factors:    []string{"py36"},
		BasePython: "definitely-not-a-python-interpreter",
	}

	p := &Provisioner{}
	dir := filepath.Join(t.TempDir(), "py36")
	_, err := p.Ensure(context.Background(), cfg, EnsureOptions{Dir: dir})
	if !errors.Is(err, ErrInterpreterNotFound) {
		t.Fatalf("expected ErrInterpreterNotFound, got %v", err)
	}
	var notFound *InterpreterNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected InterpreterNotFoundError, got %v", err)
	}
	if notFound.Env != "py36" {
		t.Errorf("expected env py36 in error, got %q", notFound.Env)
	}
}
