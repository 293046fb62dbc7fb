// Package rolling manages the output side: path templating, size/row
// thresholds, and the lifecycle of the active output file. Batches are never
// split across files, so byte thresholds are soft by at most one batch.
package rolling

import (
	"fmt"
	"strings"
)

// Template is a parsed output path. Rolling templates carry an index
// placeholder ("{}" or a printf integer verb like %03d); literal paths format
// to themselves regardless of index.
type Template struct {
	raw     string
	verb    string // printf verb, or "" when braces / literal
	braces  bool
	rolling bool
}

// ParseTemplate inspects the output path for an index placeholder.
func ParseTemplate(path string) Template {
	if strings.Contains(path, "{}") {
		return Template{raw: path, braces: true, rolling: true}
	}
	for i := 0; i < len(path)-1; i++ {
		if path[i] != '%' {
			continue
		}
		j := i + 1
		for j < len(path) && path[j] >= '0' && path[j] <= '9' {
			j++
		}
		if j < len(path) && path[j] == 'd' {
			return Template{raw: path, verb: path[i : j+1], rolling: true}
		}
	}
	return Template{raw: path}
}

// Rolling reports whether the template carries an index placeholder.
func (t Template) Rolling() bool { return t.rolling }

// Format renders the path for the given file index.
func (t Template) Format(index int) string {
	switch {
	case t.braces:
		return strings.Replace(t.raw, "{}", fmt.Sprintf("%04d", index), 1)
	case t.verb != "":
		return strings.Replace(t.raw, t.verb, fmt.Sprintf(t.verb, index), 1)
	default:
		return t.raw
	}
}
