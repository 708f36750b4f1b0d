//go:build !unix

package supervisor

import (
	"os"
	"os/exec"

	"github.com/mrzor/compdb-tracer/internal/event"
)

func setProcessGroup(*exec.Cmd) {}

func terminate(p *os.Process) error {
	return p.Kill()
}

func signalNumber(os.Signal) int {
	return 0
}

func exitStatus(state *os.ProcessState) event.ExitPayload {
	if state == nil {
		return event.ExitPayload{Code: 1}
	}
	return event.ExitPayload{Code: state.ExitCode()}
}
