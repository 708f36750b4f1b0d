package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameMatcher(t *testing.T) {
	m := NewNameMatcher(nil)

	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"cc", "-c", "a.c"}, true},
		{[]string{"/usr/bin/gcc", "a.c"}, true},
		{[]string{"g++", "a.cpp"}, true},
		{[]string{"clang++"}, true},
		{[]string{"clang-17", "-c", "a.c"}, true},
		{[]string{"gcc-12.2", "-c", "a.c"}, true},
		{[]string{"arm-none-eabi-gcc", "-c", "a.c"}, true},
		{[]string{"x86_64-linux-gnu-g++-11", "-c", "a.cc"}, true},
		{[]string{"ccache", "gcc", "-c", "a.c"}, true},
		{[]string{"ccache", "distcc", "clang", "-c", "a.c"}, true},
		{[]string{"ccache"}, false},
		{[]string{"ld", "a.o"}, false},
		{[]string{"cc1", "a.c"}, false},
		{[]string{"clang-format", "a.c"}, false},
		{[]string{"gcc-ar", "rcs", "lib.a"}, false},
		{[]string{"make"}, false},
		{nil, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, m.IsCompilerCall(tt.args), "%v", tt.args)
	}
}

func TestNameMatcher_Custom(t *testing.T) {
	m := NewNameMatcher([]string{"mycc"})
	assert.True(t, m.IsCompilerCall([]string{"/opt/bin/mycc", "a.c"}))
	assert.False(t, m.IsCompilerCall([]string{"gcc", "a.c"}))
}

func TestExprMatcher(t *testing.T) {
	m, err := NewExprMatcher(`program == "zig" && len(args) > 1 && args[1] == "cc"`)
	require.NoError(t, err)

	assert.True(t, m.IsCompilerCall([]string{"/usr/bin/zig", "cc", "-c", "a.c"}))
	assert.False(t, m.IsCompilerCall([]string{"zig", "build"}))
	assert.False(t, m.IsCompilerCall(nil))
	assert.Equal(t, `program == "zig" && len(args) > 1 && args[1] == "cc"`, m.String())
}

func TestExprMatcher_Invalid(t *testing.T) {
	_, err := NewExprMatcher(`args[`)
	assert.Error(t, err)

	_, err = NewExprMatcher(`cmdline`)
	assert.Error(t, err, "non-boolean expressions are rejected")
}

func TestAny(t *testing.T) {
	zig, err := NewExprMatcher(`program == "zig"`)
	require.NoError(t, err)
	m := Any{NewNameMatcher(nil), zig}

	assert.True(t, m.IsCompilerCall([]string{"zig", "cc"}))
	assert.True(t, m.IsCompilerCall([]string{"gcc"}))
	assert.False(t, m.IsCompilerCall([]string{"ld"}))
}

func TestParse(t *testing.T) {
	p := NewParser(nil)

	c, ok := p.Parse([]string{"cc", "-c", "a.c", "-o", "a.o", "-Iinclude", "-I", "dir/x.c"}, nil)
	require.True(t, ok)
	assert.Equal(t, []string{"a.c"}, c.Sources)
	assert.Equal(t, "a.o", c.Output)
	assert.Equal(t, []string{"cc", "-c", "a.c", "-o", "a.o", "-Iinclude", "-I", "dir/x.c"}, c.Arguments)
}

func TestParse_JoinedOutput(t *testing.T) {
	c, ok := NewParser(nil).Parse([]string{"gcc", "-oout.o", "-c", "x.cpp"}, nil)
	require.True(t, ok)
	assert.Equal(t, "out.o", c.Output)
}

func TestParse_StripsLauncher(t *testing.T) {
	c, ok := NewParser(nil).Parse([]string{"ccache", "gcc", "-c", "x.c"}, nil)
	require.True(t, ok)
	assert.Equal(t, []string{"gcc", "-c", "x.c"}, c.Arguments)
}

func TestParse_NonCompiling(t *testing.T) {
	p := NewParser(nil)
	for _, args := range [][]string{
		{"cc", "-E", "a.c"},
		{"cc", "-M", "a.c"},
		{"cc", "-MM", "a.c"},
		{"cc", "--version"},
		{"cc", "-print-file-name=libc.a"},
		{"cc", "-dumpmachine"},
		{"cc", "a.o", "-o", "prog"},
		{"cc", "-o", "a.c"},
		{"cc"},
	} {
		_, ok := p.Parse(args, nil)
		assert.False(t, ok, "%v", args)
	}

	_, ok := p.Parse([]string{"cc", "-MD", "-MF", "a.d", "-c", "a.c"}, nil)
	assert.True(t, ok, "dependency side output still compiles")
}

func TestParse_MultipleSources(t *testing.T) {
	c, ok := NewParser(nil).Parse([]string{"cc", "-c", "a.c", "b.c", "-DX"}, nil)
	require.True(t, ok)
	require.Equal(t, []string{"a.c", "b.c"}, c.Sources)
	assert.Equal(t, []string{"cc", "-c", "a.c", "-DX"}, c.ArgumentsFor(0))
	assert.Equal(t, []string{"cc", "-c", "b.c", "-DX"}, c.ArgumentsFor(1))
}

func TestParse_CustomExtensions(t *testing.T) {
	p := NewParser([]string{"foo"})
	c, ok := p.Parse([]string{"cc", "x.foo", "y.c"}, nil)
	require.True(t, ok)
	assert.Equal(t, []string{"x.foo"}, c.Sources)
}

func TestParse_ResponseFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "args.rsp"), []byte(`-DMSG="hello world" @nested.rsp`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested.rsp"), []byte("-c a.c\n-o a.o\n"), 0o644))

	args := []string{"cc", "@args.rsp"}
	files := ReadResponseFiles(args, dir)
	assert.Len(t, files, 2)

	c, ok := NewParser(nil).Parse(args, files)
	require.True(t, ok)
	assert.Equal(t, []string{"cc", "-DMSG=hello world", "-c", "a.c", "-o", "a.o"}, c.Arguments)
	assert.Equal(t, []string{"a.c"}, c.Sources)
	assert.Equal(t, "a.o", c.Output)
}

func TestParse_ResponseFileRemovedAfterCapture(t *testing.T) {
	dir := t.TempDir()
	rsp := filepath.Join(dir, "gen.rsp")
	require.NoError(t, os.WriteFile(rsp, []byte("-c gen.c -o gen.o"), 0o644))

	args := []string{"cc", "@gen.rsp"}
	files := ReadResponseFiles(args, dir)
	require.NoError(t, os.Remove(rsp))

	c, ok := NewParser(nil).Parse(args, files)
	require.True(t, ok)
	assert.Equal(t, []string{"gen.c"}, c.Sources)
	assert.Equal(t, "gen.o", c.Output)
}

func TestParse_MissingResponseFile(t *testing.T) {
	args := []string{"cc", "@missing.rsp", "-c", "a.c"}
	files := ReadResponseFiles(args, t.TempDir())
	assert.Nil(t, files)

	c, ok := NewParser(nil).Parse(args, files)
	require.True(t, ok)
	assert.Equal(t, args, c.Arguments)
}

func TestParse_RecursiveResponseFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.rsp"), []byte("@loop.rsp a.c"), 0o644))

	args := []string{"cc", "@loop.rsp"}
	files := ReadResponseFiles(args, dir)
	assert.Equal(t, ResponseFiles{"loop.rsp": "@loop.rsp a.c"}, files)

	c, ok := NewParser(nil).Parse(args, files)
	require.True(t, ok)
	assert.Contains(t, c.Sources, "a.c")
}
