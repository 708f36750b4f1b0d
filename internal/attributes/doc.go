// Package attributes evaluates user expressions against invocation
// metadata for span export.
//
// Expressions use the expr language and see:
//   - env: recorded environment variables (map[string]string)
//   - args: the argument vector ([]string)
//   - cmdline: the arguments joined with spaces
//   - program: base name of args[0]
//   - cwd: the working directory
//
// Three evaluators:
//   - Evaluator: Evaluates custom attribute expressions
//   - TraceIDEvaluator: Evaluates and validates trace ID expressions (32 hex chars)
//   - ParentIDEvaluator: Evaluates and validates parent span ID expressions (16 hex chars)
//
// Without an expression the trace ID is taken from the session ID. Invalid
// trace IDs are hashed with SHA-256 to produce valid IDs. Invalid parent IDs
// result in a null parent (zero span ID).
package attributes
