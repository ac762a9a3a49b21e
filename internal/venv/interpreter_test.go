// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"testing"

	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

func TestInterpreterFromFactor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		factor string
		want   string
		ok     bool
	}{
		{"py27", "python2.7", true},
		{"py34", "python3.4", true},
		{"py310", "python3.10", true},
		{"py3", "python3", true},
		{"py", "python", true},
		{"pypy", "pypy", true},
		{"pypy3", "pypy3", true},
		{"django20", "", false},
		{"nameko211", "", false},
		{"pytest", "", false},
		{"flake8", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.factor, func(t *testing.T) {
			t.Parallel()
			got, ok := interpreterFromFactor(tt.factor)
			if ok != tt.ok || got != tt.want {
				t.Errorf("interpreterFromFactor(%q) = (%q, %v), want (%q, %v)", tt.factor, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestInterpreterFor(t *testing.T) {
	t.Parallel()

	explicit := &matrixfile.EnvConfig{Name: "py36", Factors: []string{"py36"}, BasePython: "python3.11"}
	if got := InterpreterFor(explicit); got != "python3.11" {
		t.Errorf("basepython should win, got %q", got)
	}

	derived := &matrixfile.EnvConfig{
		Name:    "py27-django111-nameko211",
		Factors: []string{"py27", "django111", "nameko211"},
	}
	if got := InterpreterFor(derived); got != "python2.7" {
		t.Errorf("expected python2.7 from py27 factor, got %q", got)
	}

	fallback := &matrixfile.EnvConfig{Name: "flake8", Factors: []string{"flake8"}}
	if got := InterpreterFor(fallback); got != "python3" {
		t.Errorf("expected python3 fallback, got %q", got)
	}
}

func TestFactorVersion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		factor string
		want   string
		ok     bool
	}{
		{"py27", "2.7", true},
		{"py37", "3.7", true},
		{"py310", "3.10", true},
		{"py3", "", false},
		{"django20", "", false},
	}
	for _, tt := range tests {
		if got, ok := FactorVersion(tt.factor); ok != tt.ok || got != tt.want {
			t.Errorf("FactorVersion(%q) = (%q, %v), want (%q, %v)", tt.factor, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	deps := func(lines ...string) []matrixfile.Requirement {
		var out []matrixfile.Requirement
		for _, l := range lines {
			out = append(out, matrixfile.Requirement{Raw: l})
		}
		return out
	}

	a := Fingerprint("/usr/bin/python3", deps("pytest", "Django>=2.0,<2.1"))
	if b := Fingerprint("/usr/bin/python3", deps("pytest", "Django>=2.0,<2.1")); a != b {
		t.Error("identical inputs must fingerprint identically")
	}
	if b := Fingerprint("/usr/bin/python3", deps("Django>=2.0,<2.1", "pytest")); a == b {
		t.Error("dependency order is part of the fingerprint")
	}
	if b := Fingerprint("/usr/bin/python2.7", deps("pytest", "Django>=2.0,<2.1")); a == b {
		t.Error("interpreter path is part of the fingerprint")
	}
}

func TestEnvPaths(t *testing.T) {
	t.Parallel()
	env := &Env{Name: "py36", Dir: "/work/.envmatrix/py36"}
	if env.BinDir() == env.Dir {
		t.Error("BinDir must be a subdirectory of the env dir")
	}
	if env.Python() == "" || env.Pip() == "" {
		t.Error("tool paths must not be empty")
	}
}
