package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
)

// alwaysAllowed commands carry no side effects and stay usable under any allowlist.
var alwaysAllowed = []string{"version", "schema", "help"}

// CheckCommandAllowed matches commandPath against allowlist. An entry also
// allows every subcommand below it, so "relay" permits "relay status".
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	if matchesAny(allowlist, path) || matchesAny(alwaysAllowed, path) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy: "+path)
}

func matchesAny(entries []string, path string) bool {
	for _, allowed := range entries {
		entry := normalize(allowed)
		if entry != "" && (path == entry || strings.HasPrefix(path, entry+" ")) {
			return true
		}
	}
	return false
}

// ParseAllowlist splits a comma separated --enable-commands value.
func ParseAllowlist(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if v := normalize(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
