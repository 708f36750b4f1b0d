package wrapper

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Resolver finds the real executable for a tool name.
type Resolver interface {
	Resolve(name string) (string, error)
}

// PathResolver searches a PATH-style list, skipping wrapper directories and
// any file that is the tracer binary itself.
type PathResolver struct {
	// Path is the search list. Empty means $PATH.
	Path string
	// Skip lists directories never searched.
	Skip []string
	// Self is the tracer executable. Empty means os.Executable.
	Self string
	// AllowSelf disables the self check, so wrapper links are valid results.
	AllowSelf bool
}

// Resolve implements Resolver. Names with a directory part are looked up
// by base name.
func (r *PathResolver) Resolve(name string) (string, error) {
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("resolving tool: %w: empty name", exec.ErrNotFound)
	}

	search := r.Path
	if search == "" {
		search = os.Getenv("PATH")
	}
	self := r.Self
	if self == "" && !r.AllowSelf {
		self, _ = os.Executable() //nolint:errcheck // Without it only the skip list protects against recursion
	}

	for _, dir := range filepath.SplitList(search) {
		if dir == "" || r.skipped(dir) {
			continue
		}
		candidate := filepath.Join(dir, name)
		if !isExecutable(candidate) {
			continue
		}
		if self != "" && !r.AllowSelf {
			if same, err := isSameFile(candidate, self); err == nil && same {
				continue
			}
		}
		return candidate, nil
	}
	return "", fmt.Errorf("resolving %s: %w", name, exec.ErrNotFound)
}

func (r *PathResolver) skipped(dir string) bool {
	clean := filepath.Clean(dir)
	for _, skip := range r.Skip {
		if skip == "" {
			continue
		}
		if filepath.Clean(skip) == clean {
			return true
		}
		if same, err := isSameFile(skip, dir); err == nil && same {
			return true
		}
	}
	return false
}

// isExecutable checks if a path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0o111 != 0
}

// isSameFile reports whether a and b resolve to the same file.
func isSameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ai, bi), nil
}
