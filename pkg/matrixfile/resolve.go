// SPDX-License-Identifier: MPL-2.0

package matrixfile

import (
	"fmt"
	"strings"
)

type (
	// EnvConfig is the fully resolved configuration of one concrete
	// environment: the [testenv] base overlaid by [testenv:NAME], with
	// factor-conditional lines filtered and substitutions applied.
	EnvConfig struct {
		// Name is the concrete environment name.
		Name string
		// Factors is the decomposed factor set of Name.
		Factors []string

		// BasePython names the interpreter to build the environment
		// with. Empty means "derive from the pyXY factor".
		BasePython string
		// SkipInstall skips installing the project itself.
		SkipInstall bool
		// UseShell runs commands through the built-in shell
		// interpreter instead of direct process execution.
		UseShell bool
		// Recreate forces the environment to be rebuilt.
		Recreate bool
		// ChangeDir is the working directory for commands, relative
		// to the matrix file directory unless absolute.
		ChangeDir string
		// Depends lists environments that must complete first.
		Depends []string
		// PassEnv lists host environment variable names (globs
		// allowed) to pass through to commands.
		PassEnv []string
		// SetEnv sets environment variables for commands; applied
		// last, overriding inherited values.
		SetEnv map[string]string
		// AllowlistExternals lists commands outside the environment
		// that may run without a warning.
		AllowlistExternals []string
		// Deps is the dependency set to install, in declaration order.
		Deps []Requirement
		// Commands is the ordered command sequence.
		Commands []Command
	}

	// Command is one entry of an environment's command sequence.
	Command struct {
		// Line is the substituted command line, split by the runtime
		// with shell quoting rules.
		Line string
		// IgnoreExitCode marks commands prefixed with "-": a non-zero
		// exit is logged but does not fail the environment.
		IgnoreExitCode bool
	}
)

// Env resolves the configuration of one concrete environment. The name does
// not have to appear in the envlist; auxiliary environments that exist only
// as [testenv:NAME] sections resolve the same way.
func (mf *Matrixfile) Env(name string, subst Substitutions) (*EnvConfig, error) {
	cfg := &EnvConfig{
		Name:    name,
		Factors: Factors(name),
		SetEnv:  make(map[string]string),
	}

	get := func(key string) (string, bool) { return mf.envValue(name, key) }

	if v, ok := get("basepython"); ok {
		s, err := mf.substitute(v, name, subst)
		if err != nil {
			return nil, fmt.Errorf("env %s: basepython: %w", name, err)
		}
		cfg.BasePython = strings.TrimSpace(s)
	}
	if v, ok := get("changedir"); ok {
		s, err := mf.substitute(v, name, subst)
		if err != nil {
			return nil, fmt.Errorf("env %s: changedir: %w", name, err)
		}
		cfg.ChangeDir = strings.TrimSpace(s)
	}
	for key, dst := range map[string]*bool{
		"skip_install": &cfg.SkipInstall,
		"use_shell":    &cfg.UseShell,
		"recreate":     &cfg.Recreate,
	} {
		if v, ok := get(key); ok {
			b, err := parseBool(v)
			if err != nil {
				return nil, fmt.Errorf("env %s: %s: %w", name, key, err)
			}
			*dst = b
		}
	}
	if v, ok := get("depends"); ok {
		cfg.Depends = splitList(v)
	}
	if v, ok := get("passenv"); ok {
		cfg.PassEnv = splitList(v)
	}
	if v, ok := get("allowlist_externals"); ok {
		cfg.AllowlistExternals = splitLines(v)
	}

	if v, ok := get("setenv"); ok {
		lines, err := mf.resolveLines(v, cfg, subst)
		if err != nil {
			return nil, fmt.Errorf("env %s: setenv: %w", name, err)
		}
		for _, line := range lines {
			k, val, found := strings.Cut(line, "=")
			if !found {
				return nil, fmt.Errorf("env %s: setenv: line %q is not KEY=VALUE", name, line)
			}
			cfg.SetEnv[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	}

	if v, ok := get("deps"); ok {
		lines, err := mf.resolveLines(v, cfg, subst)
		if err != nil {
			return nil, fmt.Errorf("env %s: deps: %w", name, err)
		}
		for _, line := range lines {
			req, err := ParseRequirement(line)
			if err != nil {
				return nil, fmt.Errorf("env %s: deps: %w", name, err)
			}
			cfg.Deps = append(cfg.Deps, req)
		}
	}

	if v, ok := get("commands"); ok {
		lines, err := mf.resolveLines(v, cfg, subst)
		if err != nil {
			return nil, fmt.Errorf("env %s: commands: %w", name, err)
		}
		for _, line := range joinContinuations(lines) {
			cmd := Command{Line: line}
			if rest, ok := strings.CutPrefix(line, "-"); ok {
				cmd.IgnoreExitCode = true
				cmd.Line = strings.TrimSpace(rest)
			}
			if cmd.Line == "" {
				continue
			}
			cfg.Commands = append(cfg.Commands, cmd)
		}
	}

	return cfg, nil
}

// resolveLines filters a list body's factor-conditional lines against the
// environment's factor set, then applies substitutions to the survivors.
func (mf *Matrixfile) resolveLines(value string, cfg *EnvConfig, subst Substitutions) ([]string, error) {
	var out []string
	for _, line := range splitLines(value) {
		applies, body, err := filterFactorLine(line, cfg.Factors)
		if err != nil {
			return nil, err
		}
		if !applies {
			continue
		}
		substituted, err := mf.substitute(body, cfg.Name, subst)
		if err != nil {
			return nil, err
		}
		if substituted != "" {
			out = append(out, substituted)
		}
	}
	return out, nil
}

// filterFactorLine inspects one list line for a factor condition prefix
// ("cond: body"). Conditions use hyphen for AND, comma for OR, and "!" for
// negation; brace groups expand first ("py{27,36}: x"). A line without a
// condition prefix applies unconditionally.
func filterFactorLine(line string, factors []string) (applies bool, body string, err error) {
	prefix, rest, found := strings.Cut(line, ":")
	if !found || !isFactorCondition(prefix) {
		return true, line, nil
	}
	// "https://..." style URLs are values, not conditions.
	if strings.HasPrefix(rest, "//") {
		return true, line, nil
	}

	alternatives, err := expandBraces(prefix)
	if err != nil {
		return false, "", fmt.Errorf("condition %q: %w", prefix, err)
	}

	set := make(map[string]bool, len(factors))
	for _, f := range factors {
		set[f] = true
	}

	for _, alt := range alternatives {
		for _, orTerm := range strings.Split(alt, ",") {
			if factorTermMatches(orTerm, set) {
				return true, strings.TrimSpace(rest), nil
			}
		}
	}
	return false, "", nil
}

// factorTermMatches evaluates one OR-alternative: hyphen-joined factor
// requirements that must all hold.
func factorTermMatches(term string, factors map[string]bool) bool {
	for _, cond := range strings.Split(term, "-") {
		cond = strings.TrimSpace(cond)
		if cond == "" {
			return false
		}
		if negated, ok := strings.CutPrefix(cond, "!"); ok {
			if factors[negated] {
				return false
			}
			continue
		}
		if !factors[cond] {
			return false
		}
	}
	return true
}

// isFactorCondition reports whether a "prefix:" looks like a factor
// condition rather than part of an ordinary value (URLs, Windows paths,
// KEY=VALUE pairs with colons, ...).
func isFactorCondition(prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == ',' || r == '!' || r == '{' || r == '}':
		default:
			return false
		}
	}
	return true
}

// joinContinuations merges command lines ending in a backslash with their
// successor, preserving the original order.
func joinContinuations(lines []string) []string {
	var out []string
	var pending string
	for _, line := range lines {
		if trimmed, ok := strings.CutSuffix(line, "\\"); ok {
			pending += strings.TrimSpace(trimmed) + " "
			continue
		}
		out = append(out, strings.TrimSpace(pending+line))
		pending = ""
	}
	if pending != "" {
		out = append(out, strings.TrimSpace(pending))
	}
	return out
}
