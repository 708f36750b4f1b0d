package attributes

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/compdb-tracer/internal/config"
	"github.com/mrzor/compdb-tracer/internal/procmeta"
)

type compiledAttribute struct {
	name    string
	program *vm.Program
}

// Evaluator computes custom span attributes for an invocation.
type Evaluator struct {
	attrs []compiledAttribute
	log   logrus.FieldLogger
}

// NewEvaluator compiles every attribute expression up front, so a typo
// fails at startup instead of once per span.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	attrs := make([]compiledAttribute, 0, len(customAttrs))
	for _, attr := range customAttrs {
		program, err := compile(fmt.Sprintf("attribute %q", attr.Name), attr.Expression)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, compiledAttribute{name: attr.Name, program: program})
	}
	return &Evaluator{attrs: attrs, log: logrus.StandardLogger()}, nil
}

// WithLogger sets where evaluation failures are reported.
func (e *Evaluator) WithLogger(log logrus.FieldLogger) *Evaluator {
	if log != nil {
		e.log = log
	}
	return e
}

// EvaluateCustomAttributes evaluates every attribute against metadata, in
// definition order. An expression that fails is logged and skipped. A map
// result becomes one attribute per key, named NAME.KEY, keys sorted.
func (e *Evaluator) EvaluateCustomAttributes(metadata *procmeta.ProcessMetadata) ([]attribute.KeyValue, error) {
	if len(e.attrs) == 0 || metadata == nil {
		return nil, nil
	}

	env := metadataEnv(metadata)
	var kvs []attribute.KeyValue
	for _, attr := range e.attrs {
		output, err := expr.Run(attr.program, env)
		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"attribute": attr.name,
				"pid":       metadata.Identity.PID,
			}).Warn("failed to evaluate attribute expression")
			continue
		}

		value := reflect.ValueOf(output)
		if value.Kind() != reflect.Map {
			kvs = append(kvs, keyValue(attr.name, output))
			continue
		}

		keys := make([]string, 0, value.Len())
		byName := make(map[string]interface{}, value.Len())
		for _, k := range value.MapKeys() {
			name := sanitizeAttributeName(fmt.Sprint(k.Interface()))
			keys = append(keys, name)
			byName[name] = value.MapIndex(k).Interface()
		}
		sort.Strings(keys)
		for _, k := range keys {
			kvs = append(kvs, keyValue(attr.name+"."+k, byName[k]))
		}
	}
	return kvs, nil
}

// keyValue keeps the expression result's type where OTEL has one for it.
func keyValue(name string, v interface{}) attribute.KeyValue {
	switch v := v.(type) {
	case string:
		return attribute.String(name, v)
	case bool:
		return attribute.Bool(name, v)
	case int:
		return attribute.Int(name, v)
	case int64:
		return attribute.Int64(name, v)
	case float64:
		return attribute.Float64(name, v)
	case []string:
		return attribute.StringSlice(name, v)
	default:
		return attribute.String(name, fmt.Sprint(v))
	}
}

// sanitizeAttributeName replaces any character outside [a-zA-Z0-9_] with
// an underscore.
func sanitizeAttributeName(name string) string {
	out := []byte(name)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
