// SPDX-License-Identifier: MPL-2.0

package matrixfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/ocibuild/pkg/python"
)

const (
	// DefaultFileName is the preferred matrix file name.
	DefaultFileName = "envmatrix.ini"
	// CompatFileName is the legacy file name accepted for compatibility.
	CompatFileName = "tox.ini"

	// coreSection is the preferred core section name.
	coreSection = "envmatrix"
	// compatCoreSection is the legacy core section name.
	compatCoreSection = "tox"

	// baseEnvSection holds the defaults every environment inherits.
	baseEnvSection = "testenv"
	// envSectionPrefix prefixes per-environment overlay sections.
	envSectionPrefix = "testenv:"
)

// ErrNotFound is returned by Find when no matrix file exists in the
// directory chain.
var ErrNotFound = errors.New("no matrix file found")

type (
	// Matrixfile is a parsed matrix configuration file.
	Matrixfile struct {
		// FilePath is the absolute path the file was loaded from.
		// Empty when parsed from a reader without a path.
		FilePath string

		// Core holds the [envmatrix] (or [tox]) section.
		Core CoreConfig

		// config is the raw parsed section map, kept for overlay
		// resolution, {[section]key} substitution, and tool
		// passthrough sections.
		config python.Config
	}

	// CoreConfig is the orchestrator-facing core section.
	CoreConfig struct {
		// EnvList is the expanded, de-duplicated concrete environment
		// list in declaration order.
		EnvList []string
		// RawEnvList is the envlist value before brace expansion.
		RawEnvList string
		// SkipMissingInterpreters downgrades a missing interpreter
		// from an environment failure to a reported skip.
		SkipMissingInterpreters bool
		// MinVersion is accepted for compatibility and not enforced.
		MinVersion string
	}
)

// Find searches startDir and its parents for a matrix file and returns its
// absolute path. It prefers DefaultFileName over CompatFileName within the
// same directory. Returns ErrNotFound when the root is reached without a hit.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range []string{DefaultFileName, CompatFileName} {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// Load reads and parses the matrix file at path.
func Load(path string) (*Matrixfile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open matrix file: %w", err)
	}
	defer f.Close()
	return Parse(f, abs)
}

// Parse parses matrix file content from r. The path is recorded for
// {toxinidir} resolution and error messages; it may be empty.
func Parse(r io.Reader, path string) (*Matrixfile, error) {
	parser := python.NewConfigParser()
	cfg, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse matrix file: %w", err)
	}

	mf := &Matrixfile{
		FilePath: path,
		config:   cfg,
	}
	if err := mf.parseCore(); err != nil {
		return nil, err
	}
	return mf, nil
}

func (mf *Matrixfile) parseCore() error {
	core, ok := mf.config[coreSection]
	if !ok {
		core, ok = mf.config[compatCoreSection]
	}
	if !ok {
		return fmt.Errorf("matrix file has no [%s] or [%s] section", coreSection, compatCoreSection)
	}

	mf.Core.RawEnvList = core["envlist"]
	mf.Core.MinVersion = core["minversion"]
	if v, ok := core["skip_missing_interpreters"]; ok {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("skip_missing_interpreters: %w", err)
		}
		mf.Core.SkipMissingInterpreters = b
	}

	envs, err := ExpandEnvList(mf.Core.RawEnvList)
	if err != nil {
		return fmt.Errorf("envlist: %w", err)
	}
	mf.Core.EnvList = envs
	return nil
}

// BaseDir returns the directory containing the matrix file ({toxinidir}).
// Falls back to the current directory when the file was parsed from a reader.
func (mf *Matrixfile) BaseDir() string {
	if mf.FilePath == "" {
		return "."
	}
	return filepath.Dir(mf.FilePath)
}

// EnvNames returns the expanded concrete environment list. Environments that
// only exist as [testenv:NAME] sections (auxiliary envs not in the envlist)
// are NOT included; they run only when selected explicitly.
func (mf *Matrixfile) EnvNames() []string {
	out := make([]string, len(mf.Core.EnvList))
	copy(out, mf.Core.EnvList)
	return out
}

// HasEnvSection reports whether an explicit [testenv:NAME] section exists.
func (mf *Matrixfile) HasEnvSection(name string) bool {
	_, ok := mf.config[envSectionPrefix+name]
	return ok
}

// KnownEnv reports whether name is either in the envlist or has an explicit
// overlay section.
func (mf *Matrixfile) KnownEnv(name string) bool {
	for _, n := range mf.Core.EnvList {
		if n == name {
			return true
		}
	}
	return mf.HasEnvSection(name)
}

// Section returns a passthrough section (e.g. "flake8") as parsed, or nil.
// Values keep their raw list bodies; envmatrix never interprets them.
func (mf *Matrixfile) Section(name string) map[string]string {
	sect, ok := mf.config[name]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(sect))
	for k, v := range sect {
		out[k] = v
	}
	return out
}

// envValue resolves a key for a concrete environment: the [testenv:NAME]
// overlay wins over the [testenv] base.
func (mf *Matrixfile) envValue(env, key string) (string, bool) {
	if sect, ok := mf.config[envSectionPrefix+env]; ok {
		if v, ok := sect[key]; ok {
			return v, true
		}
	}
	if sect, ok := mf.config[baseEnvSection]; ok {
		if v, ok := sect[key]; ok {
			return v, true
		}
	}
	return "", false
}

// parseBool accepts the value spellings ConfigParser historically allows.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", v)
}

// splitLines splits a ConfigParser list body into trimmed, non-empty lines.
func splitLines(v string) []string {
	var out []string
	for _, line := range strings.Split(v, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// splitList splits a comma/whitespace separated scalar list.
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
