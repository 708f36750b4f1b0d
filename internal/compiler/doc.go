// Package compiler recognizes compiler invocations and extracts what a
// compilation database needs from them: source files, output and the
// normalized argument vector.
//
// Recognition is by shape only. A Matcher decides whether a command is a
// compiler call; a Parser splits its arguments. Neither interprets what
// the flags mean beyond whether they take a value.
package compiler
