package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrzor/compdb-tracer/internal/compiler"
	"github.com/mrzor/compdb-tracer/internal/config"
	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
	"github.com/mrzor/compdb-tracer/internal/signalfwd"
)

// ErrSpawnFailure is returned when the child could not be started.
var ErrSpawnFailure = errors.New("failed to start process")

// Exit codes used by shells for commands that could not be run.
const (
	ExitNotFound      = 127
	ExitNotExecutable = 126
)

// terminateGrace is how long a child gets between SIGTERM and SIGKILL when
// the context is cancelled.
const terminateGrace = 2 * time.Second

// Reporter delivers events. eventstream.Sender satisfies it.
type Reporter interface {
	Send(e event.Event) error
}

// Command describes the process to run.
type Command struct {
	// Path is the resolved executable. It is used as is, without PATH lookup.
	Path string
	// Args is the full argument vector, including argv[0].
	Args []string
	Dir  string
	Env  []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Options configures a Supervisor.
type Options struct {
	Identity event.ProcessIdentity
	Reporter Reporter
	Signals  []os.Signal
	Logger   logrus.FieldLogger

	// KeepEnv selects the environment entries recorded in the Start event.
	// Nil records everything.
	KeepEnv func(name string) bool

	// NewProcessGroup puts the child in its own process group, so forwarded
	// signals reach the whole group.
	NewProcessGroup bool

	// OnStarted runs once the child is running and signals are being
	// relayed.
	OnStarted func(pid int)
}

// Outcome is how the child ended.
type Outcome struct {
	PID    int
	Status event.ExitPayload
}

// ExitCode maps the status the way shells do: a signal N becomes 128+N.
func (o Outcome) ExitCode() int {
	if o.Status.Signaled() {
		return 128 + o.Status.Signal
	}
	return o.Status.Code
}

// Supervisor runs commands under observation.
type Supervisor struct {
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(opts.Signals) == 0 {
		opts.Signals = signalfwd.DefaultSignals
	}
	return &Supervisor{
		opts: opts,
		log:  log.WithField("pid", opts.Identity.PID),
		now:  time.Now,
	}
}

// Run spawns cmd, relays signals to it and waits for it to finish. The
// returned error is non-nil only when the child could not be started.
func (s *Supervisor) Run(ctx context.Context, cmd Command) (Outcome, error) {
	s.send(event.NewStart(s.opts.Identity, s.now(), s.startPayload(cmd)))

	//nolint:gosec // Running the intercepted command is the point
	child := &exec.Cmd{
		Path:   cmd.Path,
		Args:   cmd.Args,
		Dir:    cmd.Dir,
		Env:    s.childEnv(cmd.Env),
		Stdin:  cmd.Stdin,
		Stdout: cmd.Stdout,
		Stderr: cmd.Stderr,
	}
	if s.opts.NewProcessGroup {
		setProcessGroup(child)
	}

	if err := child.Start(); err != nil {
		status := spawnFailureStatus(err)
		s.send(event.NewExit(s.opts.Identity, s.now(), status))
		return Outcome{Status: status}, fmt.Errorf("%w: %s: %v", ErrSpawnFailure, cmd.Path, err)
	}
	pid := child.Process.Pid
	log := s.log.WithField("child_pid", pid)
	log.Debug("child started")

	signals := make(chan os.Signal, 64)
	forwarder, err := signalfwd.Install(signalfwd.Target{PID: pid}, s.opts.Signals,
		signalfwd.WithLogger(log),
		signalfwd.WithOnForward(func(sig os.Signal) {
			select {
			case signals <- sig:
			default:
				log.WithField("signal", sig.String()).Warn("signal event queue full, not reporting")
			}
		}),
	)
	if err != nil {
		log.WithError(err).Warn("signals will not be forwarded")
	}

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		for sig := range signals {
			s.send(event.NewSignal(s.opts.Identity, s.now(), signalNumber(sig)))
		}
	}()

	if s.opts.OnStarted != nil {
		s.opts.OnStarted(pid)
	}

	if err := s.wait(ctx, child, log); err != nil {
		log.WithError(err).Debug("waiting for child")
	}

	if forwarder != nil {
		forwarder.Release()
	}
	close(signals)
	<-reported

	status := exitStatus(child.ProcessState)
	log.WithField("status", status.String()).Debug("child finished")
	s.send(event.NewExit(s.opts.Identity, s.now(), status))

	return Outcome{PID: pid, Status: status}, nil
}

// wait waits for child, asking it to terminate if ctx is cancelled first.
func (s *Supervisor) wait(ctx context.Context, child *exec.Cmd, log logrus.FieldLogger) error {
	done := make(chan error, 1)
	go func() {
		done <- child.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	log.Debug("context cancelled, terminating child")
	_ = terminate(child.Process) //nolint:errcheck // Best-effort graceful shutdown; Kill() follows

	select {
	case err := <-done:
		return err
	case <-time.After(terminateGrace):
	}
	_ = child.Process.Kill() //nolint:errcheck // Best-effort cleanup during shutdown
	return <-done
}

// Abort reports an invocation that could not even be attempted, such as a
// tool missing from PATH. It emits a Start and a failed Exit.
func (s *Supervisor) Abort(cmd Command, code int, cause error) Outcome {
	s.send(event.NewStart(s.opts.Identity, s.now(), s.startPayload(cmd)))
	status := event.ExitPayload{Code: code, Failed: true}
	s.send(event.NewExit(s.opts.Identity, s.now(), status))
	s.log.WithError(cause).Debug("invocation aborted")
	return Outcome{Status: status}
}

func (s *Supervisor) send(e event.Event) {
	if s.opts.Reporter == nil {
		return
	}
	if err := s.opts.Reporter.Send(e); err != nil {
		s.log.WithError(err).WithField("kind", e.Kind.String()).Warn("reporting event")
	}
}

func (s *Supervisor) startPayload(cmd Command) event.StartPayload {
	dir := cmd.Dir
	if dir == "" {
		dir, _ = os.Getwd() //nolint:errcheck // Recorded as empty when unknown
	}
	environ := cmd.Env
	if environ == nil {
		environ = os.Environ()
	}

	recorded := procmeta.ParseEnviron(environ)
	if s.opts.KeepEnv != nil {
		for name := range recorded {
			if !s.opts.KeepEnv(name) {
				delete(recorded, name)
			}
		}
	}

	return event.StartPayload{
		Command:       append([]string(nil), cmd.Args...),
		Executable:    cmd.Path,
		WorkingDir:    dir,
		Environment:   recorded,
		ResponseFiles: compiler.ReadResponseFiles(cmd.Args, dir),
	}
}

// childEnv returns base with the parent pid set to this invocation.
func (s *Supervisor) childEnv(base []string) []string {
	if base == nil {
		base = os.Environ()
	}
	prefix := config.EnvParentPID + "="
	env := make([]string, 0, len(base)+1)
	for _, entry := range base {
		if !strings.HasPrefix(entry, prefix) {
			env = append(env, entry)
		}
	}
	return append(env, prefix+strconv.FormatUint(uint64(s.opts.Identity.PID), 10))
}

func spawnFailureStatus(err error) event.ExitPayload {
	code := ExitNotExecutable
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
		code = ExitNotFound
	}
	return event.ExitPayload{Code: code, Failed: true}
}
