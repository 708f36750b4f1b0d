package compiler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultCompilers are the program names recognized as compilers.
var DefaultCompilers = []string{
	"cc", "c++",
	"gcc", "g++",
	"clang", "clang++", "clang-cl",
	"icc", "icpc", "icx", "icpx",
	"nvcc",
	"xlc", "xlC", "xlc++",
	"armclang",
	"tcc",
}

// Launchers are wrappers that run a compiler given as their first argument.
// Their own token is dropped from recorded arguments.
var Launchers = []string{"ccache", "distcc", "sccache", "icecc"}

// Matcher decides whether a command line is a compiler call.
type Matcher interface {
	IsCompilerCall(args []string) bool
}

// NameMatcher matches by program name. Cross-compiler prefixes
// ("arm-none-eabi-gcc") and version suffixes ("clang-17", "gcc-12.2")
// are accepted.
type NameMatcher struct {
	pattern *regexp.Regexp
}

// NewNameMatcher creates a NameMatcher for names, or DefaultCompilers when
// names is empty.
func NewNameMatcher(names []string) *NameMatcher {
	if len(names) == 0 {
		names = DefaultCompilers
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = regexp.QuoteMeta(name)
	}
	pattern := `^(?:[\w.]+-)*(?:` + strings.Join(quoted, "|") + `)(?:-[\d.]+)?(?:\.exe)?$`
	return &NameMatcher{pattern: regexp.MustCompile(pattern)}
}

// IsCompilerCall implements Matcher.
func (m *NameMatcher) IsCompilerCall(args []string) bool {
	args = StripLaunchers(args)
	if len(args) == 0 {
		return false
	}
	return m.pattern.MatchString(filepath.Base(args[0]))
}

// StripLaunchers drops leading launcher tokens ("ccache gcc ..." becomes
// "gcc ...").
func StripLaunchers(args []string) []string {
	for len(args) > 1 && isLauncher(filepath.Base(args[0])) {
		args = args[1:]
	}
	return args
}

func isLauncher(name string) bool {
	for _, l := range Launchers {
		if name == l {
			return true
		}
	}
	return false
}

// ExprMatcher matches when an expr-lang expression evaluates to true.
// Expressions see args ([]string), program (base name of args[0]) and
// cmdline (args joined with spaces).
type ExprMatcher struct {
	source  string
	program *vm.Program
}

// NewExprMatcher compiles expression.
func NewExprMatcher(expression string) (*ExprMatcher, error) {
	exprEnv := map[string]interface{}{
		"args":    []string{},
		"program": "",
		"cmdline": "",
	}
	program, err := expr.Compile(expression, expr.Env(exprEnv), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile match expression %q: %w", expression, err)
	}
	return &ExprMatcher{source: expression, program: program}, nil
}

// IsCompilerCall implements Matcher. Evaluation errors count as no match.
func (m *ExprMatcher) IsCompilerCall(args []string) bool {
	args = StripLaunchers(args)
	if len(args) == 0 {
		return false
	}
	env := map[string]interface{}{
		"args":    args,
		"program": filepath.Base(args[0]),
		"cmdline": strings.Join(args, " "),
	}
	output, err := expr.Run(m.program, env)
	if err != nil {
		return false
	}
	matched, _ := output.(bool)
	return matched
}

func (m *ExprMatcher) String() string {
	return m.source
}

// Any matches when at least one of its matchers does.
type Any []Matcher

// IsCompilerCall implements Matcher.
func (a Any) IsCompilerCall(args []string) bool {
	for _, m := range a {
		if m.IsCompilerCall(args) {
			return true
		}
	}
	return false
}
