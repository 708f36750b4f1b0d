//go:build unix

package wrapper

import (
	"syscall"
	"time"

	"github.com/mrzor/compdb-tracer/internal/supervisor"
)

// Exit returns the code to exit with. If the tool died from a signal, the
// signal is first re-raised on this process with its default disposition,
// so the caller observes the same termination; the returned code is the
// fallback for signals whose default action does not terminate.
func Exit(o supervisor.Outcome) int {
	if !o.Status.Signaled() {
		return o.ExitCode()
	}
	if err := raise(syscall.Signal(o.Status.Signal)); err == nil {
		// Delivery is asynchronous.
		time.Sleep(100 * time.Millisecond)
	}
	return o.ExitCode()
}
