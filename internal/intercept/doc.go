// Package intercept runs a build with every compiler lookup redirected to
// the wrapper and collects what the wrappers report.
//
// Run creates a temporary directory of links named after each compiler,
// all pointing at the tracer binary, and puts it first on the build's
// PATH. It listens for events on a socket inside that directory, runs the
// build under a supervisor and returns the closed session together with
// the build's outcome.
package intercept
