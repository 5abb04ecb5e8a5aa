// internal/cli/paths.go
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandPaths expands glob patterns among positional file arguments,
// keeping "-" (stdin) and literal paths as given. A pattern that matches
// nothing is an error.
func ExpandPaths(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		if a == "-" || !strings.ContainsAny(a, "*?[") {
			out = append(out, a)
			continue
		}
		m, err := filepath.Glob(a)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", a, err)
		}
		if len(m) == 0 {
			return nil, fmt.Errorf("no input matched %q", a)
		}
		sort.Strings(m)
		out = append(out, m...)
	}
	return out, nil
}
