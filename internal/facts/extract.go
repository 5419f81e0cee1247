// Package facts pulls named values out of webhook payloads with JMESPath
// expressions, optionally passing them through a small set of transforms.
package facts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jmes "github.com/jmespath/go-jmespath"

	"storeapp/pkg/apperr"
)

// Mapping binds a JMESPath expression to the key it is stored under.
type Mapping struct {
	Key       string
	Path      string
	Transform string
	Required  bool
}

type compiled struct {
	Mapping
	expr *jmes.JMESPath
}

// Extractor is immutable once built and safe for concurrent use.
type Extractor struct {
	mappings []compiled
}

// Compile parses every expression up front so a bad mapping fails at startup
// instead of on the first delivery.
func Compile(mappings ...Mapping) (*Extractor, error) {
	out := &Extractor{}
	for _, m := range mappings {
		expr, err := jmes.Compile(m.Path)
		if err != nil {
			return nil, fmt.Errorf("facts: compile %s (%q): %w", m.Key, m.Path, err)
		}
		out.mappings = append(out.mappings, compiled{Mapping: m, expr: expr})
	}
	return out, nil
}

// MustCompile is for package level declarations.
func MustCompile(mappings ...Mapping) *Extractor {
	e, err := Compile(mappings...)
	if err != nil {
		panic(err)
	}
	return e
}

// ExtractJSON decodes raw and applies the mappings. Missing optional values are
// left out of the result; a missing required value is a validation error.
func (e *Extractor) ExtractJSON(raw []byte) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.Validation("payload is not valid json", nil)
	}
	return e.Extract(doc)
}

func (e *Extractor) Extract(doc any) (map[string]any, error) {
	out := map[string]any{}
	for _, m := range e.mappings {
		val, err := m.expr.Search(doc)
		if err == nil && m.Transform != "" {
			val, err = applyTransform(m.Transform, val)
		}
		if err != nil || val == nil {
			if m.Required {
				return nil, apperr.Validation("payload is missing "+m.Key, map[string]any{"path": m.Path})
			}
			continue
		}
		out[m.Key] = val
	}
	return out, nil
}

func applyTransform(name string, v any) (any, error) {
	switch name {
	case "count":
		if arr, ok := v.([]any); ok {
			return len(arr), nil
		}
		return 0, nil
	case "sum":
		if arr, ok := v.([]any); ok {
			var s float64
			for _, it := range arr {
				s += toFloat(it)
			}
			return s, nil
		}
		return toFloat(v), nil
	case "first":
		if arr, ok := v.([]any); ok {
			if len(arr) > 0 {
				return arr[0], nil
			}
			return nil, nil
		}
		return v, nil
	case "exists":
		return v != nil, nil
	case "lower":
		if s, ok := v.(string); ok {
			return strings.ToLower(s), nil
		}
		return v, nil
	case "to_number":
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
		return toFloat(v), nil
	case "to_string":
		if v == nil {
			return nil, nil
		}
		return fmt.Sprintf("%v", v), nil
	default:
		return nil, fmt.Errorf("facts: unknown transform %q", name)
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}
