package procmeta

import (
	"strings"
	"time"

	"github.com/mrzor/compdb-tracer/internal/event"
)

// ProcessMetadata holds structured information about one invocation.
type ProcessMetadata struct {
	Identity    event.ProcessIdentity
	Environ     map[string]string // Parsed environment variables
	Args        []string          // Command-line arguments
	CmdlineFull string            // Full command line as single string
	WorkingDir  string
	Executable  string
	Started     time.Time
}

// FromStart builds metadata from a Start event.
func FromStart(e event.Event) *ProcessMetadata {
	if e.Start == nil {
		return nil
	}
	args, cmdline := parseCmdline(e.Start.Command)
	return &ProcessMetadata{
		Identity:    e.Identity,
		Environ:     e.Start.Environment,
		Args:        args,
		CmdlineFull: cmdline,
		WorkingDir:  e.Start.WorkingDir,
		Executable:  e.Start.Executable,
		Started:     e.Timestamp,
	}
}

// ParseEnviron turns KEY=VALUE entries into a map. Entries without '=' or
// with an empty key are skipped; for duplicate keys the last one wins, which
// matches how exec resolves them.
func ParseEnviron(raw []string) map[string]string {
	env := make(map[string]string, len(raw))
	for _, entry := range raw {
		idx := strings.IndexByte(entry, '=')
		if idx <= 0 {
			continue
		}
		env[entry[:idx]] = entry[idx+1:]
	}
	return env
}

func parseCmdline(raw []string) ([]string, string) {
	args := make([]string, len(raw))
	copy(args, raw)
	return args, strings.Join(args, " ")
}
