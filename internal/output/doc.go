// Package output renders a collected session.
//
// Two renderings exist:
//   - database.go writes and reads compile_commands.json
//   - otel_formatter.go exports the intercepted process tree as OpenTelemetry
//     spans, one span per invocation parented along parent_pid, with
//     forwarded signals as span events
//
// Neither touches the build itself: they run after the session is closed.
package output
