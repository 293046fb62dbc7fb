// Package plan resolves inputs, probes schemas, and freezes everything the
// pipeline needs into an immutable run plan. Plan construction touches inputs
// read-only and never opens the output path.
package plan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// InputResolutionError reports an input argument that matched nothing.
type InputResolutionError struct {
	Pattern string
	Err     error
}

func (e *InputResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve input %q: %v", e.Pattern, e.Err)
	}
	return fmt.Sprintf("resolve input %q: no matching files", e.Pattern)
}

func (e *InputResolutionError) Unwrap() error { return e.Err }

// tabularExt reports whether a path looks like a supported input file. Used
// only for directory expansion; explicitly named files are always accepted.
func tabularExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".parquet":
		return true
	case ".gz", ".zst":
		inner := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, filepath.Ext(path))))
		return inner == ".csv" || inner == ".tsv"
	}
	return false
}

// Discover expands the input arguments into a concrete ordered file list.
//
// Each argument is tried as a literal path first (file or directory), then as
// a glob. Directories expand to their tabular files, recursively unless
// noRecursive is set; files within one directory or glob sort lexically so
// the sequence is stable across runs. An argument that resolves to nothing is
// an InputResolutionError.
func Discover(args []string, noRecursive bool) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}

	add := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, arg := range args {
		st, err := os.Stat(arg)
		switch {
		case err == nil && st.IsDir():
			matched, derr := expandDir(arg, noRecursive)
			if derr != nil {
				return nil, &InputResolutionError{Pattern: arg, Err: derr}
			}
			if len(matched) == 0 {
				return nil, &InputResolutionError{Pattern: arg}
			}
			for _, m := range matched {
				add(m)
			}
		case err == nil:
			add(arg)
		default:
			matched, gerr := filepath.Glob(arg)
			if gerr != nil {
				return nil, &InputResolutionError{Pattern: arg, Err: gerr}
			}
			if len(matched) == 0 {
				return nil, &InputResolutionError{Pattern: arg, Err: err}
			}
			sort.Strings(matched)
			for _, m := range matched {
				if mst, merr := os.Stat(m); merr == nil && mst.IsDir() {
					sub, derr := expandDir(m, noRecursive)
					if derr != nil {
						return nil, &InputResolutionError{Pattern: arg, Err: derr}
					}
					for _, s := range sub {
						add(s)
					}
					continue
				}
				add(m)
			}
		}
	}
	return files, nil
}

func expandDir(dir string, noRecursive bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if noRecursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if tabularExt(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
