package attributes

import (
	"fmt"
	"path/filepath"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/compdb-tracer/internal/procmeta"
)

// typeEnv declares the variables expressions may use.
var typeEnv = map[string]interface{}{
	"env":     map[string]string{},
	"args":    []string{},
	"cmdline": "",
	"program": "",
	"cwd":     "",
}

func compile(what, source string) (*vm.Program, error) {
	program, err := expr.Compile(source, expr.Env(typeEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s expression: %w", what, err)
	}
	return program, nil
}

// metadataEnv builds the evaluation environment for one invocation.
func metadataEnv(metadata *procmeta.ProcessMetadata) map[string]interface{} {
	program := ""
	if len(metadata.Args) > 0 {
		program = filepath.Base(metadata.Args[0])
	}
	environ := metadata.Environ
	if environ == nil {
		environ = map[string]string{}
	}
	return map[string]interface{}{
		"env":     environ,
		"args":    metadata.Args,
		"cmdline": metadata.CmdlineFull,
		"program": program,
		"cwd":     metadata.WorkingDir,
	}
}
