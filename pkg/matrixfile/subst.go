// SPDX-License-Identifier: MPL-2.0

package matrixfile

import (
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

type (
	// Substitutions carries the values available to {placeholder}
	// replacement when resolving an environment. The orchestrator fills
	// the environment-directory fields after provisioning decisions;
	// static validation may leave them empty, in which case the
	// placeholders resolve to deterministic stand-ins.
	Substitutions struct {
		// PosArgs replaces {posargs}. Each argument is shell-quoted
		// so a later field split reconstructs it verbatim.
		PosArgs []string
		// EnvDir replaces {envdir}.
		EnvDir string
		// EnvBinDir replaces {envbindir}.
		EnvBinDir string
		// EnvPython replaces {envpython}.
		EnvPython string
		// LookupEnv resolves {env:VAR} replacements. Defaults to
		// os.LookupEnv; tests inject a fixed map.
		LookupEnv func(string) (string, bool)
	}

	// UnknownSubstitutionError reports a {placeholder} with no value.
	UnknownSubstitutionError struct {
		Placeholder string
	}
)

func (e *UnknownSubstitutionError) Error() string {
	return fmt.Sprintf("unknown substitution {%s}", e.Placeholder)
}

// substitute applies placeholder replacement to a single value. "{{" and
// "}}" escape literal braces.
func (mf *Matrixfile) substitute(value, envName string, subst Substitutions) (string, error) {
	lookupEnv := subst.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	var out strings.Builder
	for i := 0; i < len(value); {
		c := value[i]
		switch {
		case c == '{' && i+1 < len(value) && value[i+1] == '{':
			out.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(value) && value[i+1] == '}':
			out.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(value[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated substitution in %q", value)
			}
			end += i
			replaced, err := mf.replace(value[i+1:end], envName, subst, lookupEnv)
			if err != nil {
				return "", err
			}
			out.WriteString(replaced)
			i = end + 1
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

func (mf *Matrixfile) replace(placeholder, envName string, subst Substitutions, lookupEnv func(string) (string, bool)) (string, error) {
	switch {
	case placeholder == "toxinidir":
		return mf.BaseDir(), nil
	case placeholder == "envname":
		return envName, nil
	case placeholder == "envdir":
		return orDefault(subst.EnvDir, "{envdir}"), nil
	case placeholder == "envbindir":
		return orDefault(subst.EnvBinDir, "{envbindir}"), nil
	case placeholder == "envpython":
		return orDefault(subst.EnvPython, "python"), nil
	case placeholder == "posargs" || strings.HasPrefix(placeholder, "posargs:"):
		if len(subst.PosArgs) > 0 {
			return quoteArgs(subst.PosArgs)
		}
		if rest, ok := strings.CutPrefix(placeholder, "posargs:"); ok {
			return rest, nil
		}
		return "", nil
	case strings.HasPrefix(placeholder, "env:"):
		spec := placeholder[len("env:"):]
		name, fallback, hasFallback := strings.Cut(spec, ":")
		if v, ok := lookupEnv(name); ok {
			return v, nil
		}
		if hasFallback {
			return fallback, nil
		}
		return "", fmt.Errorf("environment variable %q is not set and {%s} has no default", name, placeholder)
	case strings.HasPrefix(placeholder, "["):
		// {[section]key} cross-section reference.
		sectEnd := strings.IndexByte(placeholder, ']')
		if sectEnd < 0 {
			return "", &UnknownSubstitutionError{Placeholder: placeholder}
		}
		sectName := placeholder[1:sectEnd]
		key := placeholder[sectEnd+1:]
		sect, ok := mf.config[sectName]
		if !ok {
			return "", fmt.Errorf("substitution {%s}: no section [%s]", placeholder, sectName)
		}
		v, ok := sect[strings.ToLower(key)]
		if !ok {
			return "", fmt.Errorf("substitution {%s}: no key %q in [%s]", placeholder, key, sectName)
		}
		return mf.substitute(v, envName, subst)
	}
	return "", &UnknownSubstitutionError{Placeholder: placeholder}
}

// quoteArgs renders positional arguments as a single shell-safe string so
// that the runtime's field split yields the original arguments.
func quoteArgs(args []string) (string, error) {
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quote positional argument %q: %w", a, err)
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
