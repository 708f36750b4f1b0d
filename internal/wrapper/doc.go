// Package wrapper is the stand-in executed in place of every intercepted
// tool.
//
// The tracer binary is linked under each compiler's name in a directory
// placed first on PATH. When entered through such a link it finds the
// real tool further down PATH, reports the invocation and runs the tool
// under a supervisor, then exits exactly as the tool did.
package wrapper
