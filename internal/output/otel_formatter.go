package output

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/compdb-tracer/internal/attributes"
	"github.com/mrzor/compdb-tracer/internal/config"
	"github.com/mrzor/compdb-tracer/internal/event"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
	"github.com/mrzor/compdb-tracer/internal/session"
)

// OTELSpanInfo holds span and timing information.
type OTELSpanInfo struct {
	Span      trace.Span
	SpanCtx   trace.SpanContext
	StartTime time.Time
	Metadata  *procmeta.ProcessMetadata
}

// OTELFormatter renders a closed session as a tree of spans, one per
// intercepted invocation, parented along parent_pid.
type OTELFormatter struct {
	tracer    trace.Tracer
	evaluator *attributes.Evaluator
	traceID   *attributes.TraceIDEvaluator
	parentID  *attributes.ParentIDEvaluator
	log       logrus.FieldLogger
}

// NewOTELFormatter creates a new OTELFormatter.
func NewOTELFormatter(tracer trace.Tracer, customAttrs []config.CustomAttribute, traceIDExpr, parentIDExpr string, log logrus.FieldLogger) (*OTELFormatter, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	evaluator, err := attributes.NewEvaluator(customAttrs)
	if err != nil {
		return nil, err
	}
	evaluator.WithLogger(log)
	traceIDEval, err := attributes.NewTraceIDEvaluator(traceIDExpr)
	if err != nil {
		return nil, err
	}
	parentIDEval, err := attributes.NewParentIDEvaluator(parentIDExpr)
	if err != nil {
		return nil, err
	}
	return &OTELFormatter{
		tracer:    tracer,
		evaluator: evaluator,
		traceID:   traceIDEval,
		parentID:  parentIDEval,
		log:       log,
	}, nil
}

// sessionExport is the per-session state of one ExportSession call.
type sessionExport struct {
	f        *OTELFormatter
	ctx      context.Context
	sess     *session.Session
	spans    map[uint32]*OTELSpanInfo
	rootCtx  trace.SpanContext
	lastSeen time.Time
}

// ExportSession emits spans for every record of s. Spans still open when the
// records run out are ended with an error status.
func (f *OTELFormatter) ExportSession(ctx context.Context, s *session.Session) error {
	if s == nil {
		return fmt.Errorf("no session to export")
	}
	x := &sessionExport{
		f:     f,
		ctx:   ctx,
		sess:  s,
		spans: make(map[uint32]*OTELSpanInfo),
	}

	for _, r := range s.Records {
		if r.Event.Timestamp.After(x.lastSeen) {
			x.lastSeen = r.Event.Timestamp
		}
		switch r.Event.Kind {
		case event.KindStart:
			x.handleStart(r.Event)
		case event.KindSignal:
			x.handleSignal(r.Event)
		case event.KindExit:
			x.handleExit(r.Event)
		}
	}
	x.endOpen()
	return nil
}

func (x *sessionExport) handleStart(e event.Event) {
	md := procmeta.FromStart(e)
	if prev, ok := x.spans[e.Identity.PID]; ok {
		prev.Span.SetAttributes(attribute.String("_tracing_warning_0", "pid reused before exit"))
		prev.Span.SetStatus(codes.Error, "no exit observed")
		prev.Span.End(trace.WithTimestamp(e.Timestamp))
	}

	ctx := x.ctx
	var rootWarnings []attribute.KeyValue
	if parent, ok := x.spans[e.Identity.ParentPID]; ok {
		ctx = trace.ContextWithSpanContext(ctx, parent.SpanCtx)
	} else {
		parentCtx, warnings := x.remoteParent(md)
		ctx = trace.ContextWithRemoteSpanContext(ctx, parentCtx)
		rootWarnings = warnings
	}

	_, span := x.f.tracer.Start(ctx, spanName(md),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(e.Timestamp),
	)

	attrs := []attribute.KeyValue{
		semconv.ProcessPID(int(e.Identity.PID)),
		semconv.ProcessParentPID(int(e.Identity.ParentPID)),
		attribute.String("compdb_tracer.session_id", e.Identity.SessionID),
	}
	if md != nil {
		attrs = append(attrs,
			semconv.ProcessCommandLine(md.CmdlineFull),
			semconv.ProcessExecutablePath(md.Executable),
			attribute.String("process.working_directory", md.WorkingDir),
		)
		custom, err := x.f.evaluator.EvaluateCustomAttributes(md)
		if err != nil {
			x.f.log.WithError(err).WithField("pid", e.Identity.PID).Warn("evaluating custom attributes")
		}
		attrs = append(attrs, custom...)
	}
	attrs = append(attrs, rootWarnings...)
	span.SetAttributes(attrs...)

	x.spans[e.Identity.PID] = &OTELSpanInfo{
		Span:      span,
		SpanCtx:   span.SpanContext(),
		StartTime: e.Timestamp,
		Metadata:  md,
	}
}

// remoteParent builds the span context a root invocation hangs off: the
// session's trace id and, when configured, an external parent span.
func (x *sessionExport) remoteParent(md *procmeta.ProcessMetadata) (trace.SpanContext, []attribute.KeyValue) {
	if x.rootCtx.TraceID().IsValid() {
		return x.rootCtx, nil
	}

	var warnings []attribute.KeyValue
	traceID, w, err := x.f.traceID.EvaluateAndValidate(x.sess.ID, md)
	if err != nil {
		x.f.log.WithError(err).Warn("trace id expression failed, using session trace id")
		traceID = attributes.SessionTraceID(x.sess.ID)
	}
	warnings = append(warnings, w...)

	spanID, w, err := x.f.parentID.EvaluateAndValidate(md)
	if err != nil {
		x.f.log.WithError(err).Warn("parent id expression failed")
	}
	warnings = append(warnings, w...)

	x.rootCtx = trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	if x.sess.Incomplete {
		warnings = append(warnings, attribute.Bool("compdb_tracer.session.incomplete", true))
	}
	if n := x.sess.IssueCount(); n > 0 {
		warnings = append(warnings, attribute.Int("compdb_tracer.session.capture_issues", n))
	}
	return x.rootCtx, warnings
}

func (x *sessionExport) handleSignal(e event.Event) {
	info, ok := x.spans[e.Identity.PID]
	if !ok {
		return
	}
	info.Span.AddEvent("signal.forwarded",
		trace.WithTimestamp(e.Timestamp),
		trace.WithAttributes(attribute.Int("signal.number", e.Signal.Number)),
	)
}

func (x *sessionExport) handleExit(e event.Event) {
	info, ok := x.spans[e.Identity.PID]
	if !ok {
		x.f.log.WithField("pid", e.Identity.PID).Debug("exit without span")
		return
	}
	exit := e.Exit

	info.Span.SetAttributes(
		attribute.Int("process.exit_code", exit.Code),
		attribute.Int64("process.duration_ns", e.Timestamp.Sub(info.StartTime).Nanoseconds()),
	)
	switch {
	case exit.Failed:
		info.Span.SetStatus(codes.Error, "spawn failed")
	case exit.Signal != 0:
		info.Span.SetAttributes(attribute.Int("process.exit_signal", exit.Signal))
		info.Span.SetStatus(codes.Error, fmt.Sprintf("terminated by signal %d", exit.Signal))
	case exit.Code != 0:
		info.Span.SetStatus(codes.Error, fmt.Sprintf("exit status %d", exit.Code))
	default:
		info.Span.SetStatus(codes.Ok, "")
	}

	info.Span.End(trace.WithTimestamp(e.Timestamp))
	delete(x.spans, e.Identity.PID)
}

// endOpen ends spans of invocations whose exit was never recorded.
func (x *sessionExport) endOpen() {
	end := x.lastSeen
	if end.IsZero() {
		end = time.Now()
	}
	for pid, info := range x.spans {
		info.Span.SetAttributes(attribute.String("_tracing_warning_0", "no exit observed"))
		info.Span.SetStatus(codes.Error, "no exit observed")
		info.Span.End(trace.WithTimestamp(end))
		delete(x.spans, pid)
	}
}

func spanName(md *procmeta.ProcessMetadata) string {
	if md == nil {
		return "process.exec"
	}
	if len(md.Args) > 0 && md.Args[0] != "" {
		return filepath.Base(md.Args[0])
	}
	if md.Executable != "" {
		return filepath.Base(md.Executable)
	}
	return "process.exec"
}
