// SPDX-License-Identifier: MPL-2.0

// Package venv provisions the isolated per-environment interpreter and
// dependency sets the matrix runs in: one Python virtualenv per declared
// environment, rebuilt when its dependency fingerprint changes.
package venv

import (
	"path/filepath"
	"runtime"
)

// WorkDirName is the default root (under the matrix file directory) that
// holds all environment directories.
const WorkDirName = ".envmatrix"

// Env describes a provisioned environment on disk.
type Env struct {
	// Name is the concrete environment name.
	Name string
	// Dir is the environment's root directory.
	Dir string
	// BasePython is the host interpreter the env was created from.
	BasePython string
}

// BinDir returns the directory holding the env's executables.
func (e *Env) BinDir() string {
	return filepath.Join(e.Dir, binDirName())
}

// Python returns the path of the env's interpreter.
func (e *Env) Python() string {
	return filepath.Join(e.BinDir(), exeName("python"))
}

// Pip returns the path of the env's package installer.
func (e *Env) Pip() string {
	return filepath.Join(e.BinDir(), exeName("pip"))
}

func binDirName() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
