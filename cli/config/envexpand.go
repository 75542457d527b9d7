package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// ExpandEnv substitutes environment variables into a sliderule.yaml
// document before it is parsed, so secrets such as the portal token stay
// out of the file:
//
//	token: ${SLIDERULE_TOKEN:?set SLIDERULE_TOKEN to a portal access token}
//	organization: ${SLIDERULE_ORG:-sliderule}
//
// ${VAR} expands to the value or to nothing. ${VAR:-default} uses default
// when VAR is unset or empty. ${VAR:?message} is required: every such
// variable left unset is reported in the returned error, with message when
// one is given.
func ExpandEnv(input string) (string, error) {
	var missing []error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, op, arg := groups[1], groups[2], groups[3]
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if op == "?" {
			if arg == "" {
				arg = "required"
			}
			missing = append(missing, fmt.Errorf("${%s}: %s", name, arg))
			return ""
		}
		return arg
	})
	return out, errors.Join(missing...)
}
