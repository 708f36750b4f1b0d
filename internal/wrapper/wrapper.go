package wrapper

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mrzor/compdb-tracer/internal/config"
	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/eventstream"
	"github.com/mrzor/compdb-tracer/internal/signalfwd"
	"github.com/mrzor/compdb-tracer/internal/supervisor"
)

// Invocation is how the wrapper was called.
type Invocation struct {
	// Args is the argument vector as received, argv[0] included.
	Args []string
	Dir  string
	Env  []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Options configures Run.
type Options struct {
	Identity event.ProcessIdentity
	Resolver Resolver
	Reporter supervisor.Reporter
	Signals  []os.Signal
	KeepEnv  func(name string) bool
	Logger   logrus.FieldLogger
}

// Run resolves and runs the real tool for inv. The returned outcome
// carries the tool's status; a tool that cannot be found or started yields
// a failed status with the shell's exit code.
func Run(ctx context.Context, inv Invocation, opts Options) supervisor.Outcome {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	sup := supervisor.New(supervisor.Options{
		Identity: opts.Identity,
		Reporter: opts.Reporter,
		Signals:  opts.Signals,
		Logger:   log,
		KeepEnv:  opts.KeepEnv,
	})

	cmd := supervisor.Command{
		Args:   inv.Args,
		Dir:    inv.Dir,
		Env:    inv.Env,
		Stdin:  inv.Stdin,
		Stdout: inv.Stdout,
		Stderr: inv.Stderr,
	}
	if len(inv.Args) == 0 {
		return sup.Abort(cmd, supervisor.ExitNotFound, os.ErrInvalid)
	}

	name := filepath.Base(inv.Args[0])
	path, err := opts.Resolver.Resolve(name)
	if err != nil {
		log.WithError(err).Errorf("%s: command not found", name)
		return sup.Abort(cmd, supervisor.ExitNotFound, err)
	}
	cmd.Path = path

	outcome, err := sup.Run(ctx, cmd)
	if err != nil {
		log.WithError(err).Errorf("%s: cannot execute", name)
	}
	return outcome
}

// Main runs the wrapper for the current process and returns its exit code.
// Reporting settings come from the environment set up by the top-level
// run; without them the tool still runs, unobserved.
func Main(ctx context.Context, args []string) int {
	envCfg, err := config.ParseEnvConfig()
	if err != nil {
		envCfg = &config.EnvConfig{}
	}
	log, logErr := config.NewLogger(envCfg.LogLevel, logrus.WarnLevel)
	if err != nil {
		log.WithError(err).Warn("ignoring malformed environment configuration")
	}
	if logErr != nil {
		log.WithError(logErr).Warn("using default log level")
	}

	var reporter eventstream.Sender = eventstream.Discard{}
	if envCfg.Reporting() {
		address, err := eventstream.ParseAddress(envCfg.Address)
		if err != nil {
			log.WithError(err).Warn("reporting disabled")
		} else {
			reporter = eventstream.NewReporter(address, envCfg.DialTimeout)
		}
	} else {
		log.Debug("no session address inherited, reporting disabled")
	}
	defer reporter.Close() //nolint:errcheck // Nothing buffered

	signals, err := signalfwd.ParseSignals(envCfg.Signals)
	if err != nil {
		log.WithError(err).Warn("using default signal set")
		signals = nil
	}
	if len(signals) == 0 {
		signals = signalfwd.DefaultSignals
	}

	dir, _ := os.Getwd() //nolint:errcheck // Recorded as empty when unknown

	outcome := Run(ctx, Invocation{
		Args:   args,
		Dir:    dir,
		Env:    os.Environ(),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, Options{
		Identity: event.ProcessIdentity{
			PID:       uint32(os.Getpid()),
			ParentPID: envCfg.ParentPIDValue(uint32(os.Getppid())),
			SessionID: envCfg.Session,
		},
		Resolver: &PathResolver{Skip: []string{envCfg.WrapperDir}},
		Reporter: reporter,
		Signals:  signals,
		KeepEnv:  KeepEnvFunc(envCfg.KeepEnv),
		Logger:   log,
	})

	return Exit(outcome)
}

// KeepEnvFunc returns a filter keeping only names, or nil (keep all) when
// names is empty.
func KeepEnvFunc(names []string) func(string) bool {
	if len(names) == 0 {
		return nil
	}
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	return func(name string) bool { return keep[name] }
}
