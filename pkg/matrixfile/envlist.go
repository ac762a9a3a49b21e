// SPDX-License-Identifier: MPL-2.0

package matrixfile

import (
	"fmt"
	"strings"
)

// ExpandEnvList expands a generative envlist value into the concrete
// environment names it denotes, in declaration order. Entries are separated
// by commas or whitespace; brace groups expand to their cross-product:
//
//	py{27,36}-django{111,20}  ->  py27-django111 py27-django20 py36-django111 py36-django20
//
// Duplicate names produced by overlapping patterns collapse first-wins;
// DetectDuplicates reports them for the validator.
func ExpandEnvList(raw string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, entry := range splitEnvListEntries(raw) {
		expanded, err := expandBraces(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		for _, name := range expanded {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

// DetectDuplicates returns the concrete names generated more than once by
// the envlist patterns, in first-occurrence order.
func DetectDuplicates(raw string) ([]string, error) {
	counts := make(map[string]int)
	var order []string
	for _, entry := range splitEnvListEntries(raw) {
		expanded, err := expandBraces(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		for _, name := range expanded {
			if counts[name] == 0 {
				order = append(order, name)
			}
			counts[name]++
		}
	}
	var dups []string
	for _, name := range order {
		if counts[name] > 1 {
			dups = append(dups, name)
		}
	}
	return dups, nil
}

// Factors decomposes a concrete environment name into its factor set.
// Factors are the hyphen-separated name segments; "py36-django20" has the
// factors {py36, django20}.
func Factors(name string) []string {
	var out []string
	for _, f := range strings.Split(name, "-") {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func splitEnvListEntries(raw string) []string {
	// Commas inside brace groups are generative, not separators, so a
	// plain FieldsFunc split would tear patterns apart.
	var entries []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		if cur.Len() > 0 {
			entries = append(entries, cur.String())
			cur.Reset()
		}
	}
	for _, r := range raw {
		switch {
		case r == '{':
			depth++
			cur.WriteRune(r)
		case r == '}':
			depth--
			cur.WriteRune(r)
		case (r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r') && depth == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return entries
}

// expandBraces expands every {a,b,...} group in pattern. Groups do not nest.
func expandBraces(pattern string) ([]string, error) {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		if strings.IndexByte(pattern, '}') >= 0 {
			return nil, fmt.Errorf("unbalanced '}'")
		}
		return []string{pattern}, nil
	}
	closing := strings.IndexByte(pattern[open:], '}')
	if closing < 0 {
		return nil, fmt.Errorf("unbalanced '{'")
	}
	closing += open

	group := pattern[open+1 : closing]
	if strings.IndexByte(group, '{') >= 0 {
		return nil, fmt.Errorf("nested brace group")
	}

	var out []string
	for _, alt := range strings.Split(group, ",") {
		alt = strings.TrimSpace(alt)
		rest, err := expandBraces(pattern[:open] + alt + pattern[closing+1:])
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}
	return out, nil
}
