package compdb

import (
	"path/filepath"
	"strings"

	"github.com/mrzor/compdb-tracer/internal/compiler"
	"github.com/mrzor/compdb-tracer/internal/session"
)

// Entry is one compilation database record.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
	Output    string   `json:"output,omitempty"`
}

func (e Entry) key() string {
	return e.Directory + "\x00" + e.File + "\x00" + strings.Join(e.Arguments, "\x00")
}

// Options configures Build.
type Options struct {
	Matcher compiler.Matcher
	Parser  *compiler.Parser
	// AbsolutePaths makes File and Output absolute against Directory.
	AbsolutePaths bool
}

// Build derives the entries of s. Entries appear in the receipt order of
// the Start events they came from; duplicates keep their first position.
// The same session always yields the same entries.
func Build(s *session.Session, opts Options) []Entry {
	if opts.Matcher == nil {
		opts.Matcher = compiler.NewNameMatcher(nil)
	}
	if opts.Parser == nil {
		opts.Parser = compiler.NewParser(nil)
	}

	var entries []Entry
	seen := make(map[string]bool)
	for _, r := range s.Starts() {
		start := r.Event.Start
		if !opts.Matcher.IsCompilerCall(start.Command) {
			continue
		}
		c, ok := opts.Parser.Parse(start.Command, start.ResponseFiles)
		if !ok {
			continue
		}

		for i, source := range c.Sources {
			entry := Entry{
				Directory: start.WorkingDir,
				File:      source,
				Arguments: c.ArgumentsFor(i),
				Output:    c.Output,
			}
			if len(c.Sources) > 1 {
				// One output for several sources is a link; it belongs to
				// none of them.
				entry.Output = ""
			}
			if opts.AbsolutePaths {
				entry.File = absolute(entry.Directory, entry.File)
				if entry.Output != "" {
					entry.Output = absolute(entry.Directory, entry.Output)
				}
			}

			k := entry.key()
			if seen[k] {
				continue
			}
			seen[k] = true
			entries = append(entries, entry)
		}
	}
	return entries
}

// Merge appends fresh to existing, dropping entries of fresh already
// present. Existing entries keep their positions.
func Merge(existing, fresh []Entry) []Entry {
	merged := make([]Entry, 0, len(existing)+len(fresh))
	seen := make(map[string]bool, len(existing)+len(fresh))
	for _, list := range [][]Entry{existing, fresh} {
		for _, e := range list {
			k := e.key()
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, e)
		}
	}
	return merged
}

func absolute(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
