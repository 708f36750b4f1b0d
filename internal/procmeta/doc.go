// Package procmeta tracks the invocations of a session that have started but
// not yet exited.
//
// ProcessMetadata holds the recorded command line, environment and working
// directory of one invocation.
//
// Manager provides command-query separation:
//
// Queries (read-only):
//   - Get(pid) - Retrieve metadata
//   - Live() - Snapshot of invocations still running
//   - Issues() - Snapshot of recorded anomalies, copied into the session
//
// Commands (mutations):
//   - Set(pid, metadata) - Record a started invocation
//   - AddIssue(pid, issue) - Record an anomaly
//   - Delete(pid) - Forget an invocation once it exits
//
// Thread-safe with RWMutex for concurrent access.
package procmeta
