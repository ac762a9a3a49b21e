// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"testing"

	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	environ := map[string]string{"PKG": "django_nameko"}

	fields, err := splitCommand(matrixfile.Command{Line: "coverage run --source $PKG -m pytest"}, environ)
	if err != nil {
		t.Fatalf("splitCommand returned error: %v", err)
	}
	want := []string{"coverage", "run", "--source", "django_nameko", "-m", "pytest"}
	if !slices.Equal(fields, want) {
		t.Errorf("expected %v, got %v", want, fields)
	}

	fields, err = splitCommand(matrixfile.Command{Line: "pytest -k 'pool tests'"}, nil)
	if err != nil {
		t.Fatalf("splitCommand returned error: %v", err)
	}
	want = []string{"pytest", "-k", "pool tests"}
	if !slices.Equal(fields, want) {
		t.Errorf("quoting must be honored, expected %v, got %v", want, fields)
	}
}

func TestExecRuntime_ValidateRejectsEmptySequence(t *testing.T) {
	t.Parallel()
	ctx := &ExecutionContext{
		Context: context.Background(),
		Env:     &matrixfile.EnvConfig{Name: "py36"},
	}
	if err := NewExecRuntime().Validate(ctx); err == nil {
		t.Fatal("expected an error for an empty command sequence")
	}
}

func TestAllowlisted(t *testing.T) {
	t.Parallel()
	cfg := &matrixfile.EnvConfig{Name: "py36", AllowlistExternals: []string{"make", "git"}}

	if !allowlisted("make", cfg) {
		t.Error("listed command must be allowed")
	}
	if allowlisted("curl", cfg) {
		t.Error("unlisted command must not be allowed")
	}
	if !allowlisted("anything", &matrixfile.EnvConfig{AllowlistExternals: []string{"*"}}) {
		t.Error("wildcard must allow everything")
	}
}

func TestExecRuntime_BinDirWinsOverPath(t *testing.T) {
	t.Parallel()
	if goruntime.GOOS == "windows" {
		t.Skip("stub scripts are not runnable on windows")
	}

	binDir := t.TempDir()
	script := filepath.Join(binDir, "pytest")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho stub-pytest $1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := &matrixfile.EnvConfig{
		Name:     "py36",
		Commands: []matrixfile.Command{{Line: "pytest -q"}},
	}
	var out, errOut bytes.Buffer
	result := NewExecRuntime().Execute(&ExecutionContext{
		Context: context.Background(),
		Env:     cfg,
		EnvDir:  filepath.Dir(binDir),
		BinDir:  binDir,
		WorkDir: t.TempDir(),
		Environ: map[string]string{"PATH": "/usr/bin:/bin"},
		Stdout:  &out,
		Stderr:  &errOut,
	})
	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
	if got := out.String(); got != "stub-pytest -q\n" {
		t.Errorf("expected the bin dir stub to run, got %q", got)
	}
}

func TestExecRuntime_ExternalNotAllowlisted(t *testing.T) {
	t.Parallel()
	if goruntime.GOOS == "windows" {
		t.Skip("relies on unix PATH lookup")
	}

	cfg := &matrixfile.EnvConfig{
		Name:               "py36",
		Commands:           []matrixfile.Command{{Line: "sh -c 'echo hi'"}},
		AllowlistExternals: []string{"make"},
	}
	var out, errOut bytes.Buffer
	result := NewExecRuntime().Execute(&ExecutionContext{
		Context: context.Background(),
		Env:     cfg,
		EnvDir:  t.TempDir(),
		BinDir:  filepath.Join(t.TempDir(), "bin"),
		WorkDir: t.TempDir(),
		Environ: map[string]string{"PATH": os.Getenv("PATH")},
		Stdout:  &out,
		Stderr:  &errOut,
	})
	if result.Success() {
		t.Fatal("an external command outside a declared allowlist must fail")
	}
	if result.Error == nil {
		t.Error("expected a descriptive error")
	}
}
