//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/mrzor/compdb-tracer/internal/event"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}

// exitStatus decodes the wait status. A missing state means Wait itself
// failed, which is reported as a generic failure code.
func exitStatus(state *os.ProcessState) event.ExitPayload {
	if state == nil {
		return event.ExitPayload{Code: 1}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return event.ExitPayload{Signal: int(ws.Signal())}
		}
		return event.ExitPayload{Code: ws.ExitStatus()}
	}
	return event.ExitPayload{Code: state.ExitCode()}
}
