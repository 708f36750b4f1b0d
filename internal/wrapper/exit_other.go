//go:build !unix

package wrapper

import "github.com/mrzor/compdb-tracer/internal/supervisor"

// Exit returns the code to exit with.
func Exit(o supervisor.Outcome) int {
	return o.ExitCode()
}
