//go:build unix

package signalfwd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// unforwardable signals cannot be caught, are synchronous faults, or belong
// to the supervisor.
var unforwardable = map[syscall.Signal]bool{
	unix.SIGKILL: true,
	unix.SIGSTOP: true,
	unix.SIGSEGV: true,
	unix.SIGBUS:  true,
	unix.SIGFPE:  true,
	unix.SIGILL:  true,
	unix.SIGTRAP: true,
	unix.SIGSYS:  true,
	unix.SIGCHLD: true,
}

// DefaultSignals are the signals forwarded when none are configured.
var DefaultSignals = []os.Signal{
	unix.SIGHUP,
	unix.SIGINT,
	unix.SIGQUIT,
	unix.SIGTERM,
	unix.SIGUSR1,
	unix.SIGUSR2,
	unix.SIGALRM,
	unix.SIGWINCH,
	unix.SIGTSTP,
	unix.SIGTTIN,
	unix.SIGTTOU,
	unix.SIGCONT,
}

// stopSignals are the job control stops. After relaying one the supervisor
// stops itself; the SIGCONT that resumes it is relayed like any other.
var stopSignals = map[os.Signal]bool{
	unix.SIGTSTP: true,
	unix.SIGTTIN: true,
	unix.SIGTTOU: true,
}

type defaultPlatform struct{}

func (defaultPlatform) install(signals []os.Signal, ch chan<- os.Signal) ([]Captured, []error) {
	var captured []Captured
	var notify []os.Signal
	var skipped []error

	seen := make(map[os.Signal]bool)
	for _, sig := range signals {
		if seen[sig] {
			continue
		}
		seen[sig] = true

		s, ok := sig.(syscall.Signal)
		if !ok {
			skipped = append(skipped, skipError(sig, "not a system signal"))
			continue
		}
		if unforwardable[s] {
			skipped = append(skipped, skipError(sig, "not forwardable"))
			continue
		}
		if signal.Ignored(sig) {
			captured = append(captured, Captured{Signal: sig, WasIgnored: true})
			continue
		}
		captured = append(captured, Captured{Signal: sig})
		notify = append(notify, sig)
	}

	if len(notify) > 0 {
		signal.Notify(ch, notify...)
	}
	return captured, skipped
}

// forward sends sig to pid, or to its whole process group when pid leads a
// group other than ours.
func (defaultPlatform) forward(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}

	target := pid
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid && pgid != unix.Getpgrp() {
		target = -pid
	}
	if err := unix.Kill(target, s); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("target %d already exited: %w", pid, err)
		}
		return fmt.Errorf("kill(%d, %s): %w", target, s, err)
	}
	return nil
}

func (defaultPlatform) restore(_ []Captured, ch chan<- os.Signal) {
	signal.Stop(ch)
}

func (defaultPlatform) stopSelf() error {
	return unix.Kill(os.Getpid(), unix.SIGSTOP)
}

// ParseSignals resolves signal names ("INT", "SIGINT") or numbers.
func ParseSignals(names []string) ([]os.Signal, error) {
	signals := make([]os.Signal, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if n, err := strconv.Atoi(name); err == nil {
			if n <= 0 || n >= 65 {
				return nil, fmt.Errorf("invalid signal number %d", n)
			}
			signals = append(signals, syscall.Signal(n))
			continue
		}
		upper := strings.ToUpper(name)
		if !strings.HasPrefix(upper, "SIG") {
			upper = "SIG" + upper
		}
		s := unix.SignalNum(upper)
		if s == 0 {
			return nil, fmt.Errorf("unknown signal %q", name)
		}
		signals = append(signals, s)
	}
	return signals, nil
}
