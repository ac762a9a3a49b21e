// SPDX-License-Identifier: MPL-2.0

package venv

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

// ErrInterpreterNotFound is the sentinel wrapped by InterpreterNotFoundError.
var ErrInterpreterNotFound = errors.New("interpreter not found")

// InterpreterNotFoundError reports a basepython that is not on PATH.
type InterpreterNotFoundError struct {
	Name string
	Env  string
}

func (e *InterpreterNotFoundError) Error() string {
	return fmt.Sprintf("interpreter %q for environment %q not found on PATH", e.Name, e.Env)
}

// Unwrap returns ErrInterpreterNotFound so callers can branch with errors.Is.
func (e *InterpreterNotFoundError) Unwrap() error { return ErrInterpreterNotFound }

// InterpreterFor returns the interpreter command an environment should be
// built with: the explicit basepython when set, otherwise the name derived
// from the environment's python factor, otherwise "python3".
func InterpreterFor(cfg *matrixfile.EnvConfig) string {
	if cfg.BasePython != "" {
		return cfg.BasePython
	}
	for _, factor := range cfg.Factors {
		if name, ok := interpreterFromFactor(factor); ok {
			return name
		}
	}
	return "python3"
}

// interpreterFromFactor maps a python factor to an interpreter command:
// py27 -> python2.7, py310 -> python3.10, py3 -> python3, pypy3 -> pypy3.
func interpreterFromFactor(factor string) (string, bool) {
	if rest, ok := strings.CutPrefix(factor, "pypy"); ok {
		if rest == "" {
			return "pypy", true
		}
		if isDigits(rest) {
			return "pypy" + rest, true
		}
		return "", false
	}
	rest, ok := strings.CutPrefix(factor, "py")
	if !ok {
		return "", false
	}
	if rest == "" {
		// A bare "py" factor means "whatever python is current".
		return "python", true
	}
	if !isDigits(rest) {
		return "", false
	}
	switch len(rest) {
	case 1:
		return "python" + rest, true
	default:
		// First digit is the major version, the rest the minor
		// (py27 -> 2.7, py310 -> 3.10).
		return fmt.Sprintf("python%c.%s", rest[0], rest[1:]), true
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// FactorVersion extracts the interpreter version string a python factor
// implies ("py27" -> "2.7"), for checks against Requires-Python metadata.
func FactorVersion(factor string) (string, bool) {
	rest, ok := strings.CutPrefix(factor, "py")
	if !ok || !isDigits(rest) || len(rest) < 2 {
		return "", false
	}
	return fmt.Sprintf("%c.%s", rest[0], rest[1:]), true
}

// LookupInterpreter resolves an interpreter command to an absolute path.
func LookupInterpreter(name, env string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &InterpreterNotFoundError{Name: name, Env: env}
	}
	return path, nil
}
