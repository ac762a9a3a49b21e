// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"os"
	"path"
	"strings"

	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

// defaultPassEnv are host variables every environment inherits without an
// explicit passenv entry. Matching is by exact name or glob.
var defaultPassEnv = []string{
	"PATH",
	"HOME",
	"LANG",
	"LANGUAGE",
	"LC_*",
	"TMPDIR",
	"TEMP",
	"TMP",
	"USERPROFILE",
	"SYSTEMROOT",
	"SYSTEMDRIVE",
	"PATHEXT",
	"COMSPEC",
	"PIP_INDEX_URL",
	"PIP_EXTRA_INDEX_URL",
	"http_proxy",
	"https_proxy",
	"no_proxy",
}

// BuildEnviron assembles the child environment for an environment's
// commands: the filtered host environment, then the virtualenv variables,
// then setenv entries (highest precedence).
func BuildEnviron(cfg *matrixfile.EnvConfig, envDir, binDir string) map[string]string {
	patterns := make([]string, 0, len(defaultPassEnv)+len(cfg.PassEnv))
	patterns = append(patterns, defaultPassEnv...)
	patterns = append(patterns, cfg.PassEnv...)

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if matchesAny(name, patterns) {
			env[name] = value
		}
	}

	env["VIRTUAL_ENV"] = envDir
	env["ENVMATRIX_ENV"] = cfg.Name
	if binDir != "" {
		if p, ok := env["PATH"]; ok && p != "" {
			env["PATH"] = binDir + string(os.PathListSeparator) + p
		} else {
			env["PATH"] = binDir
		}
	}
	// An inherited PYTHONHOME would defeat the virtualenv.
	delete(env, "PYTHONHOME")

	for k, v := range cfg.SetEnv {
		env[k] = v
	}
	return env
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == name {
			return true
		}
		if strings.ContainsAny(pattern, "*?[") {
			if ok, err := path.Match(pattern, name); err == nil && ok {
				return true
			}
		}
	}
	return false
}
