// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()
	err := NewErrorContext().
		WithOperation("provision environment").
		WithResource("py36-django20").
		Wrap(errors.New("python3.6 not found")).
		BuildError()

	want := "failed to provision environment: py36-django20: python3.6 not found"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("boom")
	err := NewErrorContext().
		WithOperation("install dependencies").
		Wrap(sentinel).
		BuildError()

	if !errors.Is(err, sentinel) {
		t.Error("cause must be reachable through errors.Is")
	}
}

func TestActionableError_FormatSuggestions(t *testing.T) {
	t.Parallel()
	var ae *ActionableError
	err := NewErrorContext().
		WithOperation("load matrix file").
		WithSuggestion("Run 'envmatrix validate' to check the file").
		WithSuggestion("Use -C to point at the right directory").
		Wrap(errors.New("no matrix file found")).
		BuildError()
	if !errors.As(err, &ae) {
		t.Fatalf("expected ActionableError, got %T", err)
	}

	plain := ae.Format(false)
	if !strings.Contains(plain, "envmatrix validate") || !strings.Contains(plain, "-C") {
		t.Errorf("suggestions missing from output: %q", plain)
	}
	if strings.Contains(plain, "Error chain") {
		t.Error("non-verbose format must not include the error chain")
	}

	verbose := ae.Format(true)
	if !strings.Contains(verbose, "Error chain") || !strings.Contains(verbose, "no matrix file found") {
		t.Errorf("verbose format missing the chain: %q", verbose)
	}
}

func TestBuild_RequiresOperation(t *testing.T) {
	t.Parallel()
	if err := NewErrorContext().WithResource("x").BuildError(); err != nil {
		t.Errorf("expected nil without an operation, got %v", err)
	}
}

func TestWrapWithOperation(t *testing.T) {
	t.Parallel()
	if WrapWithOperation(nil, "anything") != nil {
		t.Error("nil error must stay nil")
	}
	err := WrapWithOperation(errors.New("boom"), "run commands")
	if err == nil || !strings.Contains(err.Error(), "run commands") {
		t.Errorf("unexpected error: %v", err)
	}
}
