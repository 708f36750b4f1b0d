package compiler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// DefaultSourceExtensions are the file extensions treated as sources.
var DefaultSourceExtensions = []string{
	".c", ".i",
	".cc", ".cp", ".cpp", ".cxx", ".c++", ".C", ".CC", ".CPP", ".ii",
	".m", ".mi", ".mm", ".M", ".mii",
	".cu",
	".s", ".S", ".sx", ".asm",
}

// maxResponseDepth bounds nested @file expansion.
const maxResponseDepth = 8

// flagsWithValue consume the following argument.
var flagsWithValue = map[string]bool{
	"-o": true, "-x": true,
	"-I": true, "-D": true, "-U": true,
	"-include": true, "-imacros": true, "-idirafter": true,
	"-iprefix": true, "-iwithprefix": true, "-iwithprefixbefore": true,
	"-isystem": true, "-isysroot": true, "-iquote": true,
	"-MF": true, "-MT": true, "-MQ": true,
	"-Xlinker": true, "-Xassembler": true, "-Xpreprocessor": true, "-Xclang": true,
	"-L": true, "-l": true, "-T": true, "-u": true,
	"-arch": true, "-target": true, "--sysroot": true, "-aux-info": true,
	"--param": true, "-main-file-name": true,
}

// nonCompiling flags make a call produce no object code.
var nonCompiling = map[string]bool{
	"-E": true, "-M": true, "-MM": true,
	"--version": true, "--help": true, "-###": true,
	"-dumpversion": true, "-dumpmachine": true, "-dumpspecs": true, "-dumpfullversion": true,
}

// Compilation is the shape of one compiler call.
type Compilation struct {
	// Arguments is the expanded argument vector with launcher tokens removed.
	Arguments []string
	// Sources are the source file arguments, in order.
	Sources []string
	// Output is the -o argument, if any.
	Output string

	// sourceIndex holds the position of each source in Arguments.
	sourceIndex []int
}

// ArgumentsFor returns Arguments with every source other than Sources[i]
// removed.
func (c *Compilation) ArgumentsFor(i int) []string {
	args := make([]string, 0, len(c.Arguments)-len(c.Sources)+1)
	skip := make(map[int]bool, len(c.sourceIndex))
	for j, idx := range c.sourceIndex {
		if j != i {
			skip[idx] = true
		}
	}
	for idx, arg := range c.Arguments {
		if !skip[idx] {
			args = append(args, arg)
		}
	}
	return args
}

// Parser splits compiler command lines.
type Parser struct {
	extensions map[string]bool
}

// NewParser creates a Parser recognizing extensions as sources, or
// DefaultSourceExtensions when extensions is empty.
func NewParser(extensions []string) *Parser {
	if len(extensions) == 0 {
		extensions = DefaultSourceExtensions
	}
	p := &Parser{extensions: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		p.extensions[ext] = true
	}
	return p
}

// Parse splits args, a compiler call. @file arguments are expanded from
// files, never from disk. It reports false for calls that compile nothing:
// no source file, preprocessing or dependency-only output, and version or
// help queries.
func (p *Parser) Parse(args []string, files ResponseFiles) (*Compilation, bool) {
	args = StripLaunchers(args)
	if len(args) == 0 {
		return nil, false
	}

	expanded := append([]string{args[0]}, files.expand(args[1:], 0)...)
	c := &Compilation{Arguments: expanded}

	for i := 1; i < len(expanded); i++ {
		arg := expanded[i]
		switch {
		case nonCompiling[arg] || strings.HasPrefix(arg, "-print-"):
			return nil, false
		case arg == "-o":
			if i+1 < len(expanded) {
				c.Output = expanded[i+1]
			}
			i++
		case strings.HasPrefix(arg, "-o") && len(arg) > 2:
			c.Output = arg[2:]
		case flagsWithValue[arg]:
			i++
		case strings.HasPrefix(arg, "-"):
		case p.isSource(arg):
			c.Sources = append(c.Sources, arg)
			c.sourceIndex = append(c.sourceIndex, i)
		}
	}

	if len(c.Sources) == 0 {
		return nil, false
	}
	return c, true
}

func (p *Parser) isSource(arg string) bool {
	return p.extensions[filepath.Ext(arg)]
}

// ResponseFiles maps the name of an @file argument, as written, to the
// file's content at the time of the call.
type ResponseFiles map[string]string

// ReadResponseFiles reads the @file arguments of args, and the ones nested
// in them, resolved against dir. args[0] is the program and is skipped.
// Unreadable files are left out. The result is nil when there is nothing
// to record.
func ReadResponseFiles(args []string, dir string) ResponseFiles {
	if len(args) < 2 {
		return nil
	}
	files := make(ResponseFiles)
	files.read(args[1:], dir, 0)
	if len(files) == 0 {
		return nil
	}
	return files
}

func (f ResponseFiles) read(args []string, dir string, depth int) {
	if depth >= maxResponseDepth {
		return
	}
	for _, arg := range args {
		name, ok := responseFileName(arg)
		if !ok {
			continue
		}
		if _, seen := f[name]; seen {
			continue
		}
		path := name
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		f[name] = string(data)
		if words, err := shlex.Split(string(data)); err == nil {
			f.read(words, dir, depth+1)
		}
	}
}

// expand replaces @file arguments with the shell-split content recorded for
// them. Unknown or unsplittable files are left as is.
func (f ResponseFiles) expand(args []string, depth int) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		name, ok := responseFileName(arg)
		content, known := f[name]
		if !ok || !known || depth >= maxResponseDepth {
			out = append(out, arg)
			continue
		}
		words, err := shlex.Split(content)
		if err != nil {
			out = append(out, arg)
			continue
		}
		out = append(out, f.expand(words, depth+1)...)
	}
	return out
}

func responseFileName(arg string) (string, bool) {
	if !strings.HasPrefix(arg, "@") || len(arg) == 1 {
		return "", false
	}
	return arg[1:], true
}
