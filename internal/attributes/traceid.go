package attributes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/compdb-tracer/internal/procmeta"
)

// idExpression is a compiled expression expected to yield a hex id of a
// fixed width. A nil program means no expression was configured.
type idExpression struct {
	what    string
	program *vm.Program
}

func newIDExpression(what, source string) (idExpression, error) {
	if source == "" {
		return idExpression{what: what}, nil
	}
	program, err := compile(what, source)
	if err != nil {
		return idExpression{}, err
	}
	return idExpression{what: what, program: program}, nil
}

// eval runs the expression and decodes its result into out when it is
// exactly len(out) hex-encoded bytes. It returns the raw result and whether
// decoding succeeded.
func (x idExpression) eval(metadata *procmeta.ProcessMetadata, out []byte) (string, bool, error) {
	if metadata == nil {
		return "", false, fmt.Errorf("no metadata available for %s expression", x.what)
	}
	output, err := expr.Run(x.program, metadataEnv(metadata))
	if err != nil {
		return "", false, fmt.Errorf("failed to evaluate %s expression: %w", x.what, err)
	}
	result := fmt.Sprint(output)
	if len(result) != 2*len(out) {
		return result, false, nil
	}
	if _, err := hex.Decode(out, []byte(result)); err != nil {
		return result, false, nil
	}
	return result, true, nil
}

// TraceIDEvaluator picks the trace id of an exported session.
type TraceIDEvaluator struct {
	x idExpression
}

// NewTraceIDEvaluator compiles exprStr. Without an expression the trace id
// comes from the session id.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	x, err := newIDExpression("trace-id", exprStr)
	if err != nil {
		return nil, err
	}
	return &TraceIDEvaluator{x: x}, nil
}

// EvaluateAndValidate returns the trace id for a session whose top-level
// invocation is described by metadata, plus warnings for the root span. A
// result that is not 32 hex characters is hashed into a trace id.
func (e *TraceIDEvaluator) EvaluateAndValidate(sessionID string, metadata *procmeta.ProcessMetadata) (trace.TraceID, []attribute.KeyValue, error) {
	if e.x.program == nil {
		return SessionTraceID(sessionID), nil, nil
	}

	var id trace.TraceID
	result, ok, err := e.x.eval(metadata, id[:])
	if err != nil {
		return trace.TraceID{}, nil, err
	}
	if ok && id.IsValid() {
		return id, nil, nil
	}
	return hashTraceID(result), []attribute.KeyValue{
		attribute.String("_trace_id_expr_result", result),
		attribute.String("_trace_id_invalid_warning",
			fmt.Sprintf("expression result %q is not a 32-char hex trace id, used its SHA-256 instead", result)),
	}, nil
}

// SessionTraceID maps a session id to a trace id. UUIDs map to their 16
// bytes; anything else is hashed.
func SessionTraceID(sessionID string) trace.TraceID {
	if id, err := uuid.Parse(sessionID); err == nil {
		return trace.TraceID(id)
	}
	return hashTraceID(sessionID)
}

func hashTraceID(s string) trace.TraceID {
	sum := sha256.Sum256([]byte(s))
	var id trace.TraceID
	copy(id[:], sum[:])
	return id
}

// ParentIDEvaluator picks the external span the session hangs off.
type ParentIDEvaluator struct {
	x idExpression
}

// NewParentIDEvaluator compiles exprStr. Without an expression sessions
// have no external parent.
func NewParentIDEvaluator(exprStr string) (*ParentIDEvaluator, error) {
	x, err := newIDExpression("parent-id", exprStr)
	if err != nil {
		return nil, err
	}
	return &ParentIDEvaluator{x: x}, nil
}

// EvaluateAndValidate returns the parent span id and warnings for the root
// span. A result that is not 16 hex characters yields the zero span id.
func (e *ParentIDEvaluator) EvaluateAndValidate(metadata *procmeta.ProcessMetadata) (trace.SpanID, []attribute.KeyValue, error) {
	if e.x.program == nil {
		return trace.SpanID{}, nil, nil
	}

	var id trace.SpanID
	result, ok, err := e.x.eval(metadata, id[:])
	if err != nil {
		return trace.SpanID{}, nil, err
	}
	if ok {
		return id, nil, nil
	}
	return trace.SpanID{}, []attribute.KeyValue{
		attribute.String("_parent_id_expr_result", result),
		attribute.String("_parent_id_invalid_warning",
			fmt.Sprintf("expression result %q is not a 16-char hex span id, exported without parent", result)),
	}, nil
}
