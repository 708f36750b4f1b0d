package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrzor/compdb-tracer/internal/collector"
	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/eventprocessor"
	"github.com/mrzor/compdb-tracer/internal/eventstream"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
	"github.com/mrzor/compdb-tracer/internal/session"
	"github.com/mrzor/compdb-tracer/internal/signalfwd"
	"github.com/mrzor/compdb-tracer/internal/supervisor"
	"github.com/mrzor/compdb-tracer/internal/wrapper"
)

// DefaultSessionTimeout bounds the wait for the session to close after the
// build returns.
const DefaultSessionTimeout = 10 * time.Second

// Options configures Run.
type Options struct {
	// Command is the build command, argv[0] first.
	Command []string
	// Dir is the build's working directory. Empty means the current one.
	Dir       string
	SessionID string
	// Compilers are linked into the wrapper directory.
	Compilers []string
	// Self is the tracer binary. Empty means os.Executable.
	Self string
	// WrapperBase is where the wrapper directory is created.
	WrapperBase string
	// Address overrides the default socket inside the wrapper directory.
	Address string

	// GracePeriod is the drain time after the build exits. Zero means
	// collector.DefaultGracePeriod; negative means none.
	GracePeriod    time.Duration
	SessionTimeout time.Duration
	// Signals names the signals forwarded to the build and by every
	// wrapper. Empty means signalfwd.DefaultSignals.
	Signals []string
	// KeepEnv names the environment variables recorded per invocation.
	// Empty records the whole environment.
	KeepEnv []string
	// LogLevel is handed down to the wrappers.
	LogLevel string
	Logger   logrus.FieldLogger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is a finished interception.
type Result struct {
	Session *session.Session
	Outcome supervisor.Outcome
}

// Run executes the build and collects its session. The returned error is
// non-nil when the build could not be started or the interception could
// not be set up; a session that timed out is returned with
// Session.Incomplete set and no error.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("no build command")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("session", opts.SessionID)

	signals, err := signalfwd.ParseSignals(opts.Signals)
	if err != nil {
		return nil, err
	}

	self := opts.Self
	if self == "" {
		if self, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locating tracer binary: %w", err)
		}
	}

	env, err := NewEnvironment(opts.WrapperBase, opts.Compilers, self)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := env.Close(); err != nil {
			log.WithError(err).Warn("removing wrapper directory")
		}
	}()

	address := eventstream.Address{Network: "unix", Path: filepath.Join(env.Dir, "events.sock")}
	if opts.Address != "" {
		if address, err = eventstream.ParseAddress(opts.Address); err != nil {
			return nil, err
		}
	}

	top := event.ProcessIdentity{
		PID:       uint32(os.Getpid()),
		ParentPID: uint32(os.Getppid()),
		SessionID: opts.SessionID,
	}
	grace := opts.GracePeriod
	if grace == 0 {
		grace = collector.DefaultGracePeriod
	}
	manager := procmeta.NewManager()
	coll := collector.New(collector.Options{
		SessionID:   opts.SessionID,
		TopLevel:    top,
		GracePeriod: grace,
		Logger:      log,
	}, manager)
	processor := eventprocessor.NewProcessor(opts.SessionID, manager, coll)

	listener, err := eventstream.Listen(address, processor, log)
	if err != nil {
		return nil, err
	}
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := listener.Start(listenCtx); err != nil {
		return nil, err
	}
	defer func() {
		if err := listener.Stop(); err != nil {
			log.WithError(err).Debug("stopping event listener")
		}
	}()
	coll.Start()

	log.WithFields(logrus.Fields{
		"wrapper_dir": env.Dir,
		"address":     listener.Address().String(),
	}).Debug("interception ready")

	buildEnv := env.Env(os.Environ(), Settings{
		Address:  listener.Address().String(),
		Session:  opts.SessionID,
		LogLevel: opts.LogLevel,
		Signals:  opts.Signals,
		KeepEnv:  opts.KeepEnv,
	})

	sup := supervisor.New(supervisor.Options{
		Identity: top,
		Reporter: eventstream.Local{Handler: processor},
		Signals:  signals,
		Logger:   log,
		KeepEnv:  wrapper.KeepEnvFunc(opts.KeepEnv),
	})

	cmd := supervisor.Command{
		Args:   opts.Command,
		Dir:    opts.Dir,
		Env:    buildEnv,
		Stdin:  opts.Stdin,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	}

	var outcome supervisor.Outcome
	var runErr error
	path, err := resolveBuild(opts.Command[0], buildEnv)
	if err != nil {
		outcome = sup.Abort(cmd, supervisor.ExitNotFound, err)
		runErr = fmt.Errorf("%w: %v", supervisor.ErrSpawnFailure, err)
	} else {
		cmd.Path = path
		outcome, runErr = sup.Run(ctx, cmd)
	}

	timeout := opts.SessionTimeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	sess, err := coll.Finalize(timeout)
	if err != nil {
		log.WithError(err).Warn("session closed incomplete")
	}
	if len(sess.MissingExit) > 0 {
		log.WithField("count", len(sess.MissingExit)).Warn("invocations without exit")
	}

	return &Result{Session: sess, Outcome: outcome}, runErr
}

// resolveBuild finds the build command on the build's own PATH, so a
// compiler given directly as the build command goes through its wrapper.
func resolveBuild(name string, buildEnv []string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	path := ""
	for _, entry := range buildEnv {
		if value, ok := strings.CutPrefix(entry, "PATH="); ok {
			path = value
		}
	}
	r := &wrapper.PathResolver{Path: path, AllowSelf: true}
	return r.Resolve(name)
}
