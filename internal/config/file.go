package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file.
//
//	compilers: [cc, gcc, clang, my-cross-gcc]
//	source_extensions: [.c, .cc, .cpp]
//	match:
//	  - program == "zig" && args[1] == "cc"
//	signals: [INT, TERM, HUP]
//	grace_period: 500ms
//	session_timeout: 30s
//	absolute_paths: true
type FileConfig struct {
	Output           string        `yaml:"output"`
	Compilers        []string      `yaml:"compilers"`
	SourceExtensions []string      `yaml:"source_extensions"`
	Match            []string      `yaml:"match"`
	Signals          []string      `yaml:"signals"`
	KeepEnv          []string      `yaml:"keep_env"`
	GracePeriod      time.Duration `yaml:"grace_period"`
	SessionTimeout   time.Duration `yaml:"session_timeout"`
	AbsolutePaths    *bool         `yaml:"absolute_paths"`
	Append           *bool         `yaml:"append"`
	Attributes       []string      `yaml:"attributes"`
}

// LoadFile reads a YAML configuration file. Unknown keys are rejected.
func LoadFile(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only

	var cfg FileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}
