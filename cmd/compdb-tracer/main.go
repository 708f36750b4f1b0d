// compdb-tracer runs a build, records every compiler invocation it makes
// and writes a compile_commands.json compilation database.
//
// The same binary is the compiler wrapper: entered through a link named
// after a compiler, it reports the invocation and runs the real tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/compdb-tracer/internal/compdb"
	"github.com/mrzor/compdb-tracer/internal/compiler"
	"github.com/mrzor/compdb-tracer/internal/config"
	"github.com/mrzor/compdb-tracer/internal/intercept"
	"github.com/mrzor/compdb-tracer/internal/otel"
	"github.com/mrzor/compdb-tracer/internal/output"
	"github.com/mrzor/compdb-tracer/internal/session"
	"github.com/mrzor/compdb-tracer/internal/supervisor"
	"github.com/mrzor/compdb-tracer/internal/wrapper"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	wrapperMode, err := config.DetectWrapperMode(os.Getenv(config.EnvMode), os.Args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", config.ProgramName, err)
		os.Exit(1)
	}
	if wrapperMode {
		os.Exit(wrapper.Main(context.Background(), os.Args))
	}

	outcome, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", config.ProgramName, err)
		if outcome.ExitCode() == 0 {
			os.Exit(1)
		}
	}
	os.Exit(wrapper.Exit(outcome))
}

func versionInfo() string {
	return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

// run executes the configured stages. The returned outcome is the build's;
// it is zero when no build ran.
func run() (supervisor.Outcome, error) {
	var outcome supervisor.Outcome

	cfg, err := config.ParseArgs(os.Args, versionInfo())
	if errors.Is(err, config.ErrHelp) || errors.Is(err, config.ErrVersion) {
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}

	log, err := config.NewLogger(cfg.LogLevel, logrus.InfoLevel)
	if err != nil {
		return outcome, err
	}
	ctx := context.Background()

	var sess *session.Session
	if cfg.Stage == config.StageSemantic {
		if sess, err = session.ReadFile(cfg.EventsFile); err != nil {
			return outcome, err
		}
		log.WithFields(logrus.Fields{
			"events":  cfg.EventsFile,
			"records": len(sess.Records),
		}).Debug("loaded event log")
	} else {
		result, err := runBuild(ctx, cfg, log)
		if result == nil {
			return outcome, err
		}
		if err != nil {
			log.WithError(err).Error("build did not run")
		}
		sess, outcome = result.Session, result.Outcome

		if cfg.EventsFile != "" {
			if err := session.WriteFile(cfg.EventsFile, sess); err != nil {
				return outcome, fmt.Errorf("writing event log: %w", err)
			}
			log.WithField("events", cfg.EventsFile).Debug("wrote event log")
		}
	}

	if cfg.OTELExport {
		if err := exportSession(ctx, cfg, sess, log); err != nil {
			log.WithError(err).Warn("span export failed")
		}
	}

	if cfg.Stage == config.StageIntercept {
		return outcome, nil
	}

	entries, err := buildDatabase(cfg, sess)
	if err != nil {
		return outcome, err
	}
	if err := output.WriteFile(cfg.Output, entries, cfg.Append); err != nil {
		return outcome, fmt.Errorf("writing compilation database: %w", err)
	}
	log.WithFields(logrus.Fields{
		"output":  cfg.Output,
		"entries": len(entries),
	}).Info("wrote compilation database")

	return outcome, nil
}

// runBuild runs the build command with compiler interception in place.
func runBuild(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*intercept.Result, error) {
	compilers := cfg.Compilers
	if len(compilers) == 0 {
		compilers = compiler.DefaultCompilers
	}

	return intercept.Run(ctx, intercept.Options{
		Command:        cfg.FullCommand(),
		SessionID:      cfg.SessionID,
		Compilers:      compilers,
		Address:        cfg.Address,
		GracePeriod:    cfg.GracePeriod,
		SessionTimeout: cfg.SessionTimeout,
		Signals:        cfg.Signals,
		KeepEnv:        cfg.KeepEnv,
		LogLevel:       cfg.LogLevel,
		Logger:         log,
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	})
}

// buildDatabase derives the compilation entries of sess.
func buildDatabase(cfg *config.Config, sess *session.Session) ([]compdb.Entry, error) {
	matchers := compiler.Any{compiler.NewNameMatcher(cfg.Compilers)}
	for _, expression := range cfg.MatchExpressions {
		m, err := compiler.NewExprMatcher(expression)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}

	return compdb.Build(sess, compdb.Options{
		Matcher:       matchers,
		Parser:        compiler.NewParser(cfg.SourceExtensions),
		AbsolutePaths: cfg.AbsolutePaths,
	}), nil
}

// setupOTEL initializes the OTEL provider and returns a tracer and cleanup function.
func setupOTEL(ctx context.Context, log *logrus.Logger) (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	tp, err := otel.InitProvider(ctx, otelCfg, version, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.WithError(err).Warn("shutting down OTEL provider")
		}
	}

	return tp.Tracer(config.ProgramName), cleanup, nil
}

// exportSession sends the session's process tree as spans.
func exportSession(ctx context.Context, cfg *config.Config, sess *session.Session, log *logrus.Logger) error {
	tracer, cleanup, err := setupOTEL(ctx, log)
	if err != nil {
		return err
	}
	defer cleanup()

	formatter, err := output.NewOTELFormatter(tracer, cfg.CustomAttributes, cfg.TraceID, cfg.ParentID, log)
	if err != nil {
		return fmt.Errorf("failed to create OTEL formatter: %w", err)
	}
	return formatter.ExportSession(ctx, sess)
}
