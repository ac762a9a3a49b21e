// SPDX-License-Identifier: MPL-2.0

package matrixfile

import (
	"slices"
	"testing"
)

func TestExpandEnvList_Plain(t *testing.T) {
	t.Parallel()
	got, err := ExpandEnvList("py36, flake8\nisort")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"py36", "flake8", "isort"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExpandEnvList_BraceCrossProduct(t *testing.T) {
	t.Parallel()
	got, err := ExpandEnvList("py{27,36}-django{111,20}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"py27-django111",
		"py27-django20",
		"py36-django111",
		"py36-django20",
	}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExpandEnvList_ThreeFactors(t *testing.T) {
	t.Parallel()
	got, err := ExpandEnvList("py{35,36,37}-django{20,21,22}-nameko{211,212}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 18 {
		t.Fatalf("expected 18 environments, got %d: %v", len(got), got)
	}
	if got[0] != "py35-django20-nameko211" {
		t.Errorf("expected first env py35-django20-nameko211, got %q", got[0])
	}
	if got[17] != "py37-django22-nameko212" {
		t.Errorf("expected last env py37-django22-nameko212, got %q", got[17])
	}
}

func TestExpandEnvList_DuplicatesCollapseFirstWins(t *testing.T) {
	t.Parallel()
	got, err := ExpandEnvList("py36, py{36,37}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"py36", "py37"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExpandEnvList_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{"unbalanced open", "py{27,36"},
		{"unbalanced close", "py27}"},
		{"nested group", "py{2{7,8}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ExpandEnvList(tt.raw); err == nil {
				t.Errorf("ExpandEnvList(%q): expected error, got nil", tt.raw)
			}
		})
	}
}

func TestDetectDuplicates(t *testing.T) {
	t.Parallel()
	got, err := DetectDuplicates("py{36,37}, flake8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no duplicates for distinct names, got %v", got)
	}

	got, err = DetectDuplicates("py36, py{36,37}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(got, []string{"py36"}) {
		t.Errorf("expected [py36], got %v", got)
	}
}

func TestFactors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		env  string
		want []string
	}{
		{"single", "flake8", []string{"flake8"}},
		{"triple", "py36-django20-nameko211", []string{"py36", "django20", "nameko211"}},
		{"empty segments dropped", "py36--django20", []string{"py36", "django20"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Factors(tt.env); !slices.Equal(got, tt.want) {
				t.Errorf("Factors(%q) = %v, want %v", tt.env, got, tt.want)
			}
		})
	}
}
