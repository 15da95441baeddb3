package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRefRegex matches $${...} escapes and ${NAME}, ${NAME:-default} and
// ${NAME:?message} references
var envRefRegex = regexp.MustCompile(`\$\$\{[^}]*\}|\$\{([^}:]+)(?::([-?])([^}]*))?\}`)

// SubstituteEnvVars expands environment references in config text:
//   - ${VAR} is replaced by the value of VAR (empty when unset)
//   - ${VAR:-default} falls back to default when VAR is empty or unset
//   - ${VAR:?message} fails with message when VAR is empty or unset
//   - $${VAR} is kept literally as ${VAR}
//
// All missing required variables are reported together.
func SubstituteEnvVars(content string) (string, error) {
	var missing []error

	out := envRefRegex.ReplaceAllStringFunc(content, func(ref string) string {
		if strings.HasPrefix(ref, "$$") {
			return ref[1:]
		}

		m := envRefRegex.FindStringSubmatch(ref)
		name := strings.TrimSpace(m[1])
		op, arg := m[2], strings.TrimSpace(m[3])
		value := os.Getenv(name)

		switch op {
		case "-":
			if value == "" {
				return arg
			}
		case "?":
			if value == "" {
				if arg == "" {
					arg = fmt.Sprintf("required environment variable %s is not set", name)
				}
				missing = append(missing, errors.New(arg))
			}
		}
		return value
	})

	return out, errors.Join(missing...)
}
