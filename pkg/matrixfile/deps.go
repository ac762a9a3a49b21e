// SPDX-License-Identifier: MPL-2.0

package matrixfile

import (
	"fmt"
	"strings"

	"github.com/datawire/ocibuild/pkg/python/pep440"
)

type (
	// Requirement is one resolved dependency line.
	Requirement struct {
		// Raw is the line as written (after substitution).
		Raw string
		// Name is the distribution name, empty for installer flags.
		Name string
		// Extras are the requested extras, if any.
		Extras []string
		// Specifier is the parsed version constraint set; nil when
		// the line pins nothing.
		Specifier pep440.Specifier
		// IsFlag marks installer pass-through lines (-r, -c, -e, ...).
		IsFlag bool
	}

	// UnsatisfiableError reports a requirement whose version clauses
	// admit no version at all.
	UnsatisfiableError struct {
		Requirement string
		Reason      string
	}
)

func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("requirement %q is unsatisfiable: %s", e.Requirement, e.Reason)
}

// ParseRequirement parses one dependency line. Lines starting with "-" are
// installer flags (requirements files, constraints, editable installs) and
// pass through unvalidated.
func ParseRequirement(line string) (Requirement, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Requirement{}, fmt.Errorf("empty requirement")
	}
	if strings.HasPrefix(line, "-") {
		return Requirement{Raw: line, IsFlag: true}, nil
	}

	nameEnd := strings.IndexAny(line, "<>=!~;")
	name := line
	spec := ""
	if nameEnd >= 0 {
		name = line[:nameEnd]
		spec = line[nameEnd:]
	}
	// Environment markers are not evaluated; the specifier stops there.
	if marker := strings.IndexByte(spec, ';'); marker >= 0 {
		spec = spec[:marker]
	}

	req := Requirement{Raw: line, Name: strings.TrimSpace(name)}
	if req.Name == "" {
		return Requirement{}, fmt.Errorf("requirement %q has no distribution name", line)
	}

	if open := strings.IndexByte(req.Name, '['); open >= 0 {
		closing := strings.IndexByte(req.Name, ']')
		if closing < open {
			return Requirement{}, fmt.Errorf("requirement %q: unbalanced extras", line)
		}
		for _, extra := range strings.Split(req.Name[open+1:closing], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
		req.Name = strings.TrimSpace(req.Name[:open])
	}

	if strings.TrimSpace(spec) != "" {
		parsed, err := pep440.ParseSpecifier(spec)
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement %q: %w", line, err)
		}
		req.Specifier = parsed
	}
	return req, nil
}

// CheckSatisfiable verifies that the requirement's version clauses admit at
// least one version: every lower bound must sit below every upper bound,
// and a pinned version must fall inside the bounded range. Prefix clauses
// ("==1.3.*") are not analyzed.
func (r Requirement) CheckSatisfiable() error {
	if r.IsFlag || len(r.Specifier) == 0 {
		return nil
	}

	var (
		lower, upper, pin        *pep440.Version
		lowerStrict, upperStrict bool
		lowerClause, upperClause string
	)

	for _, clause := range r.Specifier {
		v := clause.Version
		switch clause.CmpOp {
		case pep440.CmpOpGE, pep440.CmpOpGT:
			if lower == nil || v.Cmp(*lower) > 0 {
				vv := v
				lower = &vv
				lowerStrict = clause.CmpOp == pep440.CmpOpGT
				lowerClause = clause.CmpOp.String() + v.String()
			}
		case pep440.CmpOpLE, pep440.CmpOpLT:
			if upper == nil || v.Cmp(*upper) < 0 {
				vv := v
				upper = &vv
				upperStrict = clause.CmpOp == pep440.CmpOpLT
				upperClause = clause.CmpOp.String() + v.String()
			}
		case pep440.CmpOpStrictMatch:
			if pin != nil && pin.Cmp(v) != 0 {
				return &UnsatisfiableError{
					Requirement: r.Raw,
					Reason:      fmt.Sprintf("conflicting pins ==%s and ==%s", pin, v),
				}
			}
			vv := v
			pin = &vv
		}
	}

	if lower != nil && upper != nil {
		switch c := lower.Cmp(*upper); {
		case c > 0:
			return &UnsatisfiableError{
				Requirement: r.Raw,
				Reason:      fmt.Sprintf("lower bound %s exceeds upper bound %s", lowerClause, upperClause),
			}
		case c == 0 && (lowerStrict || upperStrict):
			return &UnsatisfiableError{
				Requirement: r.Raw,
				Reason:      fmt.Sprintf("bounds %s and %s exclude every version", lowerClause, upperClause),
			}
		}
	}
	if pin != nil {
		if lower != nil {
			if c := pin.Cmp(*lower); c < 0 || (c == 0 && lowerStrict) {
				return &UnsatisfiableError{
					Requirement: r.Raw,
					Reason:      fmt.Sprintf("pin ==%s violates %s", pin, lowerClause),
				}
			}
		}
		if upper != nil {
			if c := pin.Cmp(*upper); c > 0 || (c == 0 && upperStrict) {
				return &UnsatisfiableError{
					Requirement: r.Raw,
					Reason:      fmt.Sprintf("pin ==%s violates %s", pin, upperClause),
				}
			}
		}
	}
	return nil
}
