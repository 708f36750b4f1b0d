package config

import (
	"fmt"
	"strings"
)

// CustomAttribute is a span attribute computed from an expression.
type CustomAttribute struct {
	Name       string
	Expression string
}

// parseAttribute parses one NAME=EXPR definition.
func parseAttribute(def string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(def, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", def)
	}
	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", def)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", def)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}

// ParseAttributeString parses semicolon-separated NAME=EXPR definitions,
// the format of COMPDB_TRACER_ATTRIBUTES.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var attrs []CustomAttribute
	for _, def := range strings.Split(s, ";") {
		if strings.TrimSpace(def) == "" {
			continue
		}
		attr, err := parseAttribute(def)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}
