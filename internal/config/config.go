package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

// ProgramName is the name the tracer binary is installed under.
const ProgramName = "compdb-tracer"

// DefaultOutput is the compilation database written when -o is not given.
const DefaultOutput = "compile_commands.json"

// ErrVersion is returned by ParseArgs after printing the version.
var ErrVersion = errors.New("version requested")

// ErrHelp is returned by ParseArgs when -h or --help was given.
var ErrHelp = pflag.ErrHelp

// Stage selects which half of the pipeline runs.
type Stage string

const (
	// StageAll intercepts the build and writes the database.
	StageAll Stage = "all"
	// StageIntercept intercepts the build and writes the event log only.
	StageIntercept Stage = "intercept"
	// StageSemantic reads an event log and writes the database.
	StageSemantic Stage = "semantic"
)

// Config holds the parsed command-line configuration
type Config struct {
	// Command is the build executable to run
	Command string
	// Args are the arguments to pass to the command
	Args []string

	Stage         Stage
	Output        string
	EventsFile    string
	Append        bool
	AbsolutePaths bool

	Compilers        []string
	SourceExtensions []string
	MatchExpressions []string

	Signals        []string
	KeepEnv        []string
	GracePeriod    time.Duration
	SessionTimeout time.Duration
	Address        string
	SessionID      string

	LogLevel string
	Verbose  bool

	// OTELExport enables span export of the intercepted process tree
	OTELExport       bool
	TraceID          string
	ParentID         string
	CustomAttributes []CustomAttribute

	ConfigFile string
}

// ParseArgs parses command-line arguments and returns a Config.
// Expected format: program_name [flags] [--] <command> [args...]
//
// Values come from, in increasing priority: built-in defaults, the YAML
// file named by --config or COMPDB_TRACER_CONFIG, COMPDB_TRACER_* variables,
// and command-line flags.
func ParseArgs(args []string, version string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}
	programName := filepath.Base(args[0])

	envCfg, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Stage:  StageAll,
		Output: DefaultOutput,
	}

	fs := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	var (
		stage      string
		attributes []string
		showVer    bool
	)
	fs.StringVarP(&stage, "stage", "s", string(StageAll), "pipeline stage: all, intercept or semantic")
	fs.StringVarP(&cfg.Output, "output", "o", DefaultOutput, "compilation database path")
	fs.StringVarP(&cfg.EventsFile, "events", "e", "", "event log path (.zst to compress)")
	fs.BoolVar(&cfg.Append, "append", false, "merge into an existing compilation database")
	fs.BoolVar(&cfg.AbsolutePaths, "absolute-paths", false, "record source files as absolute paths")
	fs.StringSliceVar(&cfg.Compilers, "compiler", nil, "compiler name to intercept (repeatable)")
	fs.StringSliceVar(&cfg.SourceExtensions, "source-ext", nil, "source file extension (repeatable)")
	fs.StringArrayVar(&cfg.MatchExpressions, "match", nil, "expression selecting compiler calls (repeatable)")
	fs.StringSliceVar(&cfg.Signals, "signal", nil, "signal to forward to the build (repeatable)")
	fs.StringSliceVar(&cfg.KeepEnv, "keep-env", nil, "environment variable to record (repeatable)")
	fs.DurationVar(&cfg.GracePeriod, "grace-period", 0, "drain time after the build exits")
	fs.DurationVar(&cfg.SessionTimeout, "session-timeout", 0, "upper bound on waiting for the session to close")
	fs.StringVar(&cfg.Address, "address", "", "event channel address (unix:PATH or tcp:HOST:PORT)")
	fs.StringVar(&cfg.SessionID, "session-id", "", "session identifier (default: random uuid)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "log level")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug logging")
	fs.BoolVar(&cfg.OTELExport, "otel", false, "export the process tree as OpenTelemetry spans")
	fs.StringVarP(&cfg.TraceID, "trace-id", "t", "", "trace id expression")
	fs.StringVarP(&cfg.ParentID, "parent-id", "p", "", "parent span id expression")
	fs.StringArrayVarP(&attributes, "attribute", "a", nil, "span attribute NAME=EXPR (repeatable)")
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML configuration file")
	fs.BoolVar(&showVer, "version", false, "print version and exit")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(os.Stdout, Usage(programName, fs))
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("%w\n\n%s", err, Usage(programName, fs))
	}
	if showVer {
		fmt.Fprintf(os.Stdout, "%s %s\n", programName, version)
		return nil, ErrVersion
	}

	cfg.Stage = Stage(stage)
	switch cfg.Stage {
	case StageAll, StageIntercept, StageSemantic:
	default:
		return nil, fmt.Errorf("invalid stage %q: expected all, intercept or semantic", stage)
	}

	if !fs.Changed("config") {
		cfg.ConfigFile = envCfg.ConfigFile
	}
	if cfg.ConfigFile != "" {
		file, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyFile(fs, file); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(fs, envCfg); err != nil {
		return nil, err
	}

	cliAttrs := make([]CustomAttribute, 0, len(attributes))
	for _, def := range attributes {
		attr, err := parseAttribute(def)
		if err != nil {
			return nil, err
		}
		cliAttrs = append(cliAttrs, attr)
	}
	cfg.CustomAttributes = append(cfg.CustomAttributes, cliAttrs...)

	if cfg.Verbose && !fs.Changed("log-level") {
		cfg.LogLevel = "debug"
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	cmdArgs := fs.Args()
	switch cfg.Stage {
	case StageSemantic:
		if cfg.EventsFile == "" {
			return nil, fmt.Errorf("semantic stage requires --events")
		}
		if len(cmdArgs) > 0 {
			return nil, fmt.Errorf("semantic stage takes no command, got %q", strings.Join(cmdArgs, " "))
		}
		return cfg, nil
	case StageIntercept:
		if cfg.EventsFile == "" {
			return nil, fmt.Errorf("intercept stage requires --events")
		}
	}
	if len(cmdArgs) == 0 {
		return nil, fmt.Errorf("no command specified\n\n%s", Usage(programName, fs))
	}
	cfg.Command = cmdArgs[0]
	cfg.Args = cmdArgs[1:]
	return cfg, nil
}

// applyFile fills values not given on the command line from the YAML file.
func (c *Config) applyFile(fs *pflag.FlagSet, file *FileConfig) error {
	if file.Output != "" && !fs.Changed("output") {
		c.Output = file.Output
	}
	if len(file.Compilers) > 0 && !fs.Changed("compiler") {
		c.Compilers = file.Compilers
	}
	if len(file.SourceExtensions) > 0 && !fs.Changed("source-ext") {
		c.SourceExtensions = file.SourceExtensions
	}
	if len(file.Match) > 0 && !fs.Changed("match") {
		c.MatchExpressions = file.Match
	}
	if len(file.Signals) > 0 && !fs.Changed("signal") {
		c.Signals = file.Signals
	}
	if len(file.KeepEnv) > 0 && !fs.Changed("keep-env") {
		c.KeepEnv = file.KeepEnv
	}
	if file.GracePeriod > 0 && !fs.Changed("grace-period") {
		c.GracePeriod = file.GracePeriod
	}
	if file.SessionTimeout > 0 && !fs.Changed("session-timeout") {
		c.SessionTimeout = file.SessionTimeout
	}
	if file.AbsolutePaths != nil && !fs.Changed("absolute-paths") {
		c.AbsolutePaths = *file.AbsolutePaths
	}
	if file.Append != nil && !fs.Changed("append") {
		c.Append = *file.Append
	}
	for _, def := range file.Attributes {
		attr, err := parseAttribute(def)
		if err != nil {
			return fmt.Errorf("config file %s: %w", c.ConfigFile, err)
		}
		c.CustomAttributes = append(c.CustomAttributes, attr)
	}
	return nil
}

// applyEnv fills values not given on the command line from the environment.
// Attributes from the environment come before those given with -a.
func (c *Config) applyEnv(fs *pflag.FlagSet, envCfg *EnvConfig) error {
	if envCfg.LogLevel != "" && !fs.Changed("log-level") {
		c.LogLevel = envCfg.LogLevel
	}
	if envCfg.GracePeriod > 0 && !fs.Changed("grace-period") {
		c.GracePeriod = envCfg.GracePeriod
	}
	if len(envCfg.Signals) > 0 && !fs.Changed("signal") {
		c.Signals = envCfg.Signals
	}
	if len(envCfg.KeepEnv) > 0 && !fs.Changed("keep-env") {
		c.KeepEnv = envCfg.KeepEnv
	}
	attrs, err := ParseAttributeString(envCfg.Attributes)
	if err != nil {
		return fmt.Errorf("COMPDB_TRACER_ATTRIBUTES: %w", err)
	}
	c.CustomAttributes = append(c.CustomAttributes, attrs...)
	return nil
}

// Usage renders the command-line help.
func Usage(programName string, fs *pflag.FlagSet) string {
	return fmt.Sprintf("Usage: %s [flags] -- <build command> [args...]\n"+
		"       %s --stage semantic --events FILE [flags]\n"+
		"Example: %s -- make -j8\n\nFlags:\n%s",
		programName, programName, programName, fs.FlagUsages())
}

// FullCommand returns the command and all its arguments as a slice
func (c *Config) FullCommand() []string {
	return append([]string{c.Command}, c.Args...)
}

// ModeWrapper is the EnvMode value that forces wrapper behavior.
const ModeWrapper = "wrapper"

// DetectWrapperMode reports whether the binary should act as a compiler
// wrapper. In auto mode that is the case when it was entered through a link
// named after anything other than the tracer itself.
func DetectWrapperMode(mode, argv0 string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		name := strings.TrimSuffix(filepath.Base(argv0), ".exe")
		return name != ProgramName, nil
	case ModeWrapper:
		return true, nil
	case "tracer", "direct":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s %q: expected auto, wrapper or tracer", EnvMode, mode)
	}
}
