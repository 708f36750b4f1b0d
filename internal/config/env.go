package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Environment variables shared between the top-level run and its wrappers.
const (
	EnvAddress    = "COMPDB_TRACER_ADDRESS"
	EnvSession    = "COMPDB_TRACER_SESSION"
	EnvParentPID  = "COMPDB_TRACER_PARENT_PID"
	EnvWrapperDir = "COMPDB_TRACER_WRAPPER_DIR"
	EnvMode       = "COMPDB_TRACER_MODE"
	EnvLogLevel   = "COMPDB_TRACER_LOG_LEVEL"
	EnvSignals    = "COMPDB_TRACER_SIGNALS"
	EnvKeepEnv    = "COMPDB_TRACER_KEEP_ENV"
)

// EnvConfig holds configuration read from COMPDB_TRACER_* variables.
type EnvConfig struct {
	Address     string        `env:"COMPDB_TRACER_ADDRESS"`
	Session     string        `env:"COMPDB_TRACER_SESSION"`
	ParentPID   string        `env:"COMPDB_TRACER_PARENT_PID"`
	WrapperDir  string        `env:"COMPDB_TRACER_WRAPPER_DIR"`
	Mode        string        `env:"COMPDB_TRACER_MODE" envDefault:"auto"`
	LogLevel    string        `env:"COMPDB_TRACER_LOG_LEVEL"`
	DialTimeout time.Duration `env:"COMPDB_TRACER_DIAL_TIMEOUT" envDefault:"1s"`
	GracePeriod time.Duration `env:"COMPDB_TRACER_GRACE_PERIOD"`
	Signals     []string      `env:"COMPDB_TRACER_SIGNALS" envSeparator:","`
	KeepEnv     []string      `env:"COMPDB_TRACER_KEEP_ENV" envSeparator:","`
	ConfigFile  string        `env:"COMPDB_TRACER_CONFIG"`
	Attributes  string        `env:"COMPDB_TRACER_ATTRIBUTES"`
}

// ParseEnvConfig parses configuration from environment variables.
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// ParentPIDValue returns the inherited parent pid, or fallback when unset
// or unparseable.
func (c *EnvConfig) ParentPIDValue(fallback uint32) uint32 {
	if c.ParentPID == "" {
		return fallback
	}
	pid, err := strconv.ParseUint(strings.TrimSpace(c.ParentPID), 10, 32)
	if err != nil || pid == 0 {
		return fallback
	}
	return uint32(pid)
}

// Reporting reports whether a session address and id were inherited.
func (c *EnvConfig) Reporting() bool {
	return c.Address != "" && c.Session != ""
}
