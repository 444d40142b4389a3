package config

import (
	"os"
	"regexp"
)

// envRefPattern matches ${VAR} or ${VAR:-default}
var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references in a config
// file. An unset or empty variable expands to its default, or to "" when it
// has none.
func ExpandEnv(input string) string {
	return envRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envRefPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(parts[1]); ok && value != "" {
			return value
		}
		return parts[3]
	})
}

// MissingEnvVars lists the variables referenced without a default that are
// unset or empty, in order of first reference.
func MissingEnvVars(input string) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, m := range envRefPattern.FindAllStringSubmatch(input, -1) {
		name, hasDefault := m[1], m[2] != ""
		if seen[name] || hasDefault {
			continue
		}
		seen[name] = true
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
