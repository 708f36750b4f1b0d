package intercept

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrzor/compdb-tracer/internal/config"
)

// Environment is a directory of wrapper links.
type Environment struct {
	Dir string
}

// NewEnvironment creates a temporary directory under base (os.TempDir when
// empty) holding one link per compiler name, each pointing at self.
func NewEnvironment(base string, compilers []string, self string) (*Environment, error) {
	dir, err := os.MkdirTemp(base, "compdb-tracer-")
	if err != nil {
		return nil, fmt.Errorf("creating wrapper directory: %w", err)
	}
	env := &Environment{Dir: dir}

	for _, name := range compilers {
		if name == "" || strings.ContainsRune(name, filepath.Separator) {
			continue
		}
		link := filepath.Join(dir, name)
		if err := os.Symlink(self, link); err != nil {
			if closeErr := env.Close(); closeErr != nil {
				return nil, fmt.Errorf("linking %s: %w (cleanup: %v)", name, err, closeErr)
			}
			return nil, fmt.Errorf("linking %s: %w", name, err)
		}
	}
	return env, nil
}

// Close removes the directory.
func (e *Environment) Close() error {
	return os.RemoveAll(e.Dir)
}

// Settings are the values wrappers need to report. Empty optional values
// are left to the wrappers' defaults.
type Settings struct {
	Address string
	Session string

	LogLevel string
	Signals  []string
	KeepEnv  []string
}

// Env returns base with PATH led by the wrapper directory and the session
// settings set. Any inherited parent pid is dropped; the supervisor sets
// its own. The mode is pinned to wrapper so an inherited value cannot turn
// the links back into the tracer.
func (e *Environment) Env(base []string, s Settings) []string {
	overrides := map[string]string{
		config.EnvAddress:    s.Address,
		config.EnvSession:    s.Session,
		config.EnvWrapperDir: e.Dir,
		config.EnvMode:       config.ModeWrapper,
	}
	optional := []string{config.EnvLogLevel, config.EnvSignals, config.EnvKeepEnv}
	for name, value := range map[string]string{
		config.EnvLogLevel: s.LogLevel,
		config.EnvSignals:  strings.Join(s.Signals, ","),
		config.EnvKeepEnv:  strings.Join(s.KeepEnv, ","),
	} {
		if value != "" {
			overrides[name] = value
		}
	}

	path := ""
	env := make([]string, 0, len(base)+len(overrides)+1)
	for _, entry := range base {
		name, value, _ := strings.Cut(entry, "=")
		_, overridden := overrides[name]
		switch {
		case name == "PATH":
			path = value
		case name == config.EnvParentPID, overridden:
		default:
			env = append(env, entry)
		}
	}

	env = append(env, "PATH="+InsertToPath(path, e.Dir))
	for _, name := range []string{config.EnvAddress, config.EnvSession, config.EnvWrapperDir, config.EnvMode} {
		env = append(env, name+"="+overrides[name])
	}
	for _, name := range optional {
		if value, ok := overrides[name]; ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}

// InsertToPath puts dir first in a PATH-style list and drops duplicate
// entries, keeping the first of each.
func InsertToPath(path, dir string) string {
	entries := append([]string{dir}, filepath.SplitList(path)...)
	seen := make(map[string]bool, len(entries))
	kept := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		clean := filepath.Clean(entry)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		kept = append(kept, entry)
	}
	return strings.Join(kept, string(filepath.ListSeparator))
}
