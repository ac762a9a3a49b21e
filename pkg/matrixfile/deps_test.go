// SPDX-License-Identifier: MPL-2.0

package matrixfile

import (
	"errors"
	"slices"
	"testing"
)

func TestParseRequirement(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		line        string
		wantName    string
		wantExtras  []string
		wantFlag    bool
		wantClauses int
	}{
		{"bare name", "pytest", "pytest", nil, false, 0},
		{"range", "Django>=1.11,<2.0", "Django", nil, false, 2},
		{"pin", "nameko==2.12.0", "nameko", nil, false, 1},
		{"extras", "nameko[dev]>=2.11", "nameko", []string{"dev"}, false, 1},
		{"requirements file", "-r requirements.txt", "", nil, true, 0},
		{"constraints file", "-c constraints.txt", "", nil, true, 0},
		{"env marker truncated", "mock>=2.0; python_version<'3.0'", "mock", nil, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := ParseRequirement(tt.line)
			if err != nil {
				t.Fatalf("ParseRequirement(%q) returned error: %v", tt.line, err)
			}
			if req.Name != tt.wantName {
				t.Errorf("name = %q, want %q", req.Name, tt.wantName)
			}
			if !slices.Equal(req.Extras, tt.wantExtras) {
				t.Errorf("extras = %v, want %v", req.Extras, tt.wantExtras)
			}
			if req.IsFlag != tt.wantFlag {
				t.Errorf("isFlag = %v, want %v", req.IsFlag, tt.wantFlag)
			}
			if len(req.Specifier) != tt.wantClauses {
				t.Errorf("clauses = %d, want %d", len(req.Specifier), tt.wantClauses)
			}
		})
	}
}

func TestParseRequirement_Errors(t *testing.T) {
	t.Parallel()
	for _, line := range []string{"", ">=1.0", "Django>=not.a.version"} {
		if _, err := ParseRequirement(line); err == nil {
			t.Errorf("ParseRequirement(%q): expected error, got nil", line)
		}
	}
}

func TestCheckSatisfiable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		ok   bool
	}{
		{"matrix django111", "Django>=1.11,<2.0", true},
		{"matrix django22", "Django>=2.2,<3.0", true},
		{"matrix nameko211", "nameko>=2.11,<2.12", true},
		{"matrix nameko212", "nameko>=2.12,<2.13", true},
		{"inverted bounds", "Django>=2.0,<1.11", false},
		{"empty half-open range", "Django>=2.0,<2.0", false},
		{"touching closed range", "Django>=2.0,<=2.0", true},
		{"pin inside range", "Django>=1.11,<2.0,==1.11.5", true},
		{"pin below range", "Django>=2.0,==1.11", false},
		{"pin above range", "Django<2.0,==2.2", false},
		{"conflicting pins", "Django==1.11,==2.0", false},
		{"no constraint", "pytest", true},
		{"flag line", "-r requirements.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := ParseRequirement(tt.line)
			if err != nil {
				t.Fatalf("ParseRequirement(%q) returned error: %v", tt.line, err)
			}
			err = req.CheckSatisfiable()
			if tt.ok && err != nil {
				t.Errorf("expected satisfiable, got %v", err)
			}
			if !tt.ok {
				var unsat *UnsatisfiableError
				if !errors.As(err, &unsat) {
					t.Errorf("expected UnsatisfiableError, got %v", err)
				}
			}
		})
	}
}
