// SPDX-License-Identifier: MPL-2.0

// Package checks statically validates a matrix configuration: expansion
// ambiguity, dependency satisfiability, lint exclusion sanity, packaging
// metadata, and dangling references. Checks read only the parsed file (plus
// an optional sdist archive), so repeated runs over unchanged input always
// produce identical findings.
package checks

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chr1043086360/envmatrix/internal/sdist"
	"github.com/chr1043086360/envmatrix/internal/venv"
	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

// Finding severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Check identifiers, one per validation concern.
const (
	CheckExpansion    = "expansion"
	CheckResolution   = "resolution"
	CheckCommands     = "commands"
	CheckDepends      = "depends"
	CheckDependencies = "dependencies"
	CheckLintExclude  = "lint-exclude"
	CheckPackaging    = "packaging"
)

type (
	// Severity classifies a finding.
	Severity string

	// Finding is one validation result.
	Finding struct {
		// Check names the validation concern that produced the finding.
		Check string
		// Env is the environment concerned, empty for file-level findings.
		Env string
		// Severity is error or warning.
		Severity Severity
		// Message describes the problem.
		Message string
	}

	// Options configures a validation run.
	Options struct {
		// File is the parsed matrix file. Required.
		File *matrixfile.Matrixfile
		// Package names the package under test for the lint-exclusion
		// check. Empty means "derive from the coverage --source argument".
		Package string
		// SdistPath points at a built sdist to validate instead of the
		// project-file presence heuristic. Optional.
		SdistPath string
	}
)

func (f Finding) String() string {
	if f.Env != "" {
		return fmt.Sprintf("%s: [%s] %s: %s", f.Severity, f.Check, f.Env, f.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", f.Severity, f.Check, f.Message)
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Run executes every check and returns the findings in deterministic order.
// The returned error covers only inability to validate, never a finding.
func Run(opts Options) ([]Finding, error) {
	v := &validator{opts: opts, file: opts.File}

	v.checkExpansion()
	configs := v.checkEnvs()
	v.checkDependsCycle(configs)
	v.checkLintExclude(configs)
	v.checkPackaging()

	return v.findings, nil
}

type validator struct {
	opts     Options
	file     *matrixfile.Matrixfile
	findings []Finding
}

func (v *validator) add(check, env string, severity Severity, format string, args ...any) {
	v.findings = append(v.findings, Finding{
		Check:    check,
		Env:      env,
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
	})
}

// checkExpansion validates the envlist itself: duplicates after brace
// expansion and names carrying more than one python factor.
func (v *validator) checkExpansion() {
	// The envlist already expanded at parse time, so the only possible
	// outcome here is the duplicate list.
	dups, err := matrixfile.DetectDuplicates(v.file.Core.RawEnvList)
	if err != nil {
		v.add(CheckExpansion, "", SeverityError, "envlist: %v", err)
		return
	}
	for _, dup := range dups {
		v.add(CheckExpansion, dup, SeverityWarning, "environment generated more than once by envlist expansion")
	}

	for _, name := range v.file.EnvNames() {
		var pythons []string
		for _, factor := range matrixfile.Factors(name) {
			if _, ok := venv.FactorVersion(factor); ok {
				pythons = append(pythons, factor)
			}
		}
		if len(pythons) > 1 {
			v.add(CheckExpansion, name, SeverityError,
				"ambiguous python factors %s: an environment selects exactly one interpreter", strings.Join(pythons, ", "))
		}
	}
}

// checkEnvs resolves every envlist environment and validates commands,
// depends references and dependency satisfiability. Resolved configurations
// are returned for the cross-env checks.
func (v *validator) checkEnvs() map[string]*matrixfile.EnvConfig {
	configs := make(map[string]*matrixfile.EnvConfig)
	for _, name := range v.file.EnvNames() {
		cfg, err := v.file.Env(name, staticSubstitutions())
		if err != nil {
			v.add(CheckResolution, name, SeverityError, "%v", err)
			continue
		}
		configs[name] = cfg

		if len(cfg.Commands) == 0 {
			v.add(CheckCommands, name, SeverityError, "no commands configured")
		}
		for _, dep := range cfg.Depends {
			if !v.file.KnownEnv(dep) {
				v.add(CheckDepends, name, SeverityError, "depends on unknown environment %q", dep)
			}
		}
		for _, req := range cfg.Deps {
			if err := req.CheckSatisfiable(); err != nil {
				v.add(CheckDependencies, name, SeverityError, "%v", err)
			}
		}
	}
	return configs
}

// checkDependsCycle detects cycles among the envlist's depends edges with
// Kahn's algorithm: nodes left with incoming edges after peeling are cyclic.
func (v *validator) checkDependsCycle(configs map[string]*matrixfile.EnvConfig) {
	inDegree := make(map[string]int, len(configs))
	edges := make(map[string][]string, len(configs))
	for name := range configs {
		inDegree[name] = 0
	}
	for name, cfg := range configs {
		for _, dep := range cfg.Depends {
			if _, ok := configs[dep]; !ok {
				continue
			}
			edges[dep] = append(edges[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range edges[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	var cyclic []string
	for name, deg := range inDegree {
		if deg > 0 {
			cyclic = append(cyclic, name)
		}
	}
	if len(cyclic) > 0 {
		sort.Strings(cyclic)
		v.add(CheckDepends, "", SeverityError, "depends cycle among: %s", strings.Join(cyclic, ", "))
	}
}

// checkLintExclude verifies the style checker's exclusion list never hides
// the package under test (it must stay lintable) while still letting the
// usual generated directories be excluded.
func (v *validator) checkLintExclude(configs map[string]*matrixfile.EnvConfig) {
	sect := v.file.Section("flake8")
	if sect == nil {
		return
	}
	excludeValue, ok := sect["exclude"]
	if !ok {
		return
	}

	pkg := v.opts.Package
	if pkg == "" {
		pkg = coverageSource(configs)
	}
	if pkg == "" {
		v.add(CheckLintExclude, "", SeverityWarning,
			"cannot determine the package under test (no coverage --source argument); pass --package to check the exclude list")
		return
	}

	for _, glob := range splitExcludes(excludeValue) {
		if excludeMatches(glob, pkg) {
			v.add(CheckLintExclude, "", SeverityError,
				"exclude pattern %q hides the package under test %q from the style checker", glob, pkg)
		}
	}
}

// checkPackaging validates the packaging environment's output when one is
// declared: a built sdist when given, otherwise the presence of project
// packaging files.
func (v *validator) checkPackaging() {
	if !v.file.HasEnvSection("package") && !contains(v.file.EnvNames(), "package") {
		return
	}

	if v.opts.SdistPath != "" {
		if _, err := sdist.ValidateArchive(v.opts.SdistPath, v.pythonVersions()); err != nil {
			v.add(CheckPackaging, "package", SeverityError, "%v", err)
		}
		return
	}
	if v.file.FilePath != "" && !hasProjectFile(v.file.BaseDir()) {
		v.add(CheckPackaging, "package", SeverityError,
			"no setup.py, setup.cfg or pyproject.toml next to the matrix file; the package environment has nothing to build")
		return
	}
	v.add(CheckPackaging, "package", SeverityWarning,
		"no sdist to validate; run the package environment and pass --sdist to check its metadata")
}

func hasProjectFile(dir string) bool {
	for _, name := range []string{"setup.py", "setup.cfg", "pyproject.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// pythonVersions collects the interpreter versions the matrix targets, from
// the python factors of the envlist.
func (v *validator) pythonVersions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range v.file.EnvNames() {
		for _, factor := range matrixfile.Factors(name) {
			if ver, ok := venv.FactorVersion(factor); ok && !seen[ver] {
				seen[ver] = true
				out = append(out, ver)
			}
		}
	}
	return out
}

// staticSubstitutions resolves environments without touching the host:
// directory placeholders get deterministic stand-ins and host variables
// resolve to empty strings, so validation output never depends on the
// machine it runs on.
func staticSubstitutions() matrixfile.Substitutions {
	return matrixfile.Substitutions{
		LookupEnv: func(string) (string, bool) { return "", true },
	}
}

// coverageSource extracts the --source argument of a coverage invocation
// from any environment's commands.
func coverageSource(configs map[string]*matrixfile.EnvConfig) string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, cmd := range configs[name].Commands {
			fields := strings.Fields(cmd.Line)
			for i, field := range fields {
				if field == "--source" && i+1 < len(fields) {
					return fields[i+1]
				}
				if src, ok := strings.CutPrefix(field, "--source="); ok {
					return src
				}
			}
		}
	}
	return ""
}

// splitExcludes splits a flake8 exclude value (comma separated, whitespace
// tolerated, possibly spread over continuation lines).
func splitExcludes(value string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// excludeMatches reports whether an exclusion pattern would hide the given
// package directory.
func excludeMatches(glob, pkg string) bool {
	glob = strings.TrimSuffix(strings.TrimPrefix(glob, "./"), "/")
	if glob == pkg {
		return true
	}
	if ok, err := path.Match(glob, pkg); err == nil && ok {
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
