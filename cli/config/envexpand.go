// Package config loads the dfx settings file (YAML) and the credential
// store (JSON) the CLI reads at startup and writes after a run.
package config

import (
	"os"
	"regexp"
)

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment references in input. A reference to an
// unset or empty variable takes its default, or expands to "" without one.
func ExpandEnv(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}

// UnsetRefs returns the names of referenced variables that are unset and
// have no default, in order of first appearance.
func UnsetRefs(input string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range envRef.FindAllStringSubmatch(input, -1) {
		if os.Getenv(m[1]) != "" || m[2] != "" || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}
