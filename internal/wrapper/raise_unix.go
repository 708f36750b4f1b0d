//go:build unix && !linux

package wrapper

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// raise sends sig to this process after dropping any Go-level handler.
func raise(sig syscall.Signal) error {
	signal.Reset(sig)
	return unix.Kill(os.Getpid(), sig)
}
