package attributes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/compdb-tracer/internal/procmeta"
)

const testSession = "0f8fad5b-d9cb-469f-a165-70867728950e"

func makeMetadata(environ map[string]string) *procmeta.ProcessMetadata {
	return &procmeta.ProcessMetadata{
		Environ:     environ,
		Args:        []string{"make", "-j8"},
		CmdlineFull: "make -j8",
		WorkingDir:  "/work",
	}
}

func TestSessionTraceID(t *testing.T) {
	want, err := trace.TraceIDFromHex("0f8fad5bd9cb469fa16570867728950e")
	require.NoError(t, err)
	assert.Equal(t, want, SessionTraceID(testSession))

	hashed := SessionTraceID("ci-build-1234")
	assert.True(t, hashed.IsValid())
	assert.Equal(t, hashed, SessionTraceID("ci-build-1234"), "hashing is stable")
	assert.NotEqual(t, hashed, SessionTraceID("ci-build-1235"))
}

func TestTraceIDEvaluator_NoExpression(t *testing.T) {
	evaluator, err := NewTraceIDEvaluator("")
	require.NoError(t, err)

	traceID, warnings, err := evaluator.EvaluateAndValidate(testSession, nil)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, SessionTraceID(testSession), traceID)
}

func TestTraceIDEvaluator_ValidHex(t *testing.T) {
	evaluator, err := NewTraceIDEvaluator(`env["CI_TRACE_ID"]`)
	require.NoError(t, err)

	traceID, warnings, err := evaluator.EvaluateAndValidate(testSession,
		makeMetadata(map[string]string{"CI_TRACE_ID": "0123456789abcdef0123456789abcdef"}))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", traceID.String())
}

func TestTraceIDEvaluator_HashesInvalidResult(t *testing.T) {
	evaluator, err := NewTraceIDEvaluator(`env["CI_PIPELINE_ID"]`)
	require.NoError(t, err)

	traceID, warnings, err := evaluator.EvaluateAndValidate(testSession,
		makeMetadata(map[string]string{"CI_PIPELINE_ID": "pipeline-42"}))
	require.NoError(t, err)
	assert.True(t, traceID.IsValid())
	assert.Equal(t, hashTraceID("pipeline-42"), traceID)

	require.Len(t, warnings, 2)
	assert.Equal(t, "pipeline-42", warnings[0].Value.AsString())
}

func TestTraceIDEvaluator_Errors(t *testing.T) {
	_, err := NewTraceIDEvaluator(`env[`)
	assert.Error(t, err)

	evaluator, err := NewTraceIDEvaluator(`args[3]`)
	require.NoError(t, err)

	_, _, err = evaluator.EvaluateAndValidate(testSession, nil)
	assert.Error(t, err, "expression without metadata")

	_, _, err = evaluator.EvaluateAndValidate(testSession, makeMetadata(nil))
	assert.Error(t, err, "index out of range")
}

func TestParentIDEvaluator(t *testing.T) {
	tests := []struct {
		name         string
		expression   string
		environ      map[string]string
		want         string
		wantWarnings bool
	}{
		{name: "no expression", want: "0000000000000000"},
		{name: "valid", expression: `env["PARENT"]`, environ: map[string]string{"PARENT": "0123456789abcdef"}, want: "0123456789abcdef"},
		{name: "too short", expression: `env["PARENT"]`, environ: map[string]string{"PARENT": "abc"}, want: "0000000000000000", wantWarnings: true},
		{name: "not hex", expression: `"zzzzzzzzzzzzzzzz"`, want: "0000000000000000", wantWarnings: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator, err := NewParentIDEvaluator(tt.expression)
			require.NoError(t, err)

			spanID, warnings, err := evaluator.EvaluateAndValidate(makeMetadata(tt.environ))
			require.NoError(t, err)
			assert.Equal(t, tt.want, spanID.String())
			assert.Equal(t, tt.wantWarnings, len(warnings) > 0)
		})
	}
}
