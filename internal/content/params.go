package content

import (
	"fmt"
	"strconv"
	"strings"
)

// Int reads an integer difficulty param. JSON numbers arrive as float64 and
// YAML ones as int, so both are accepted, as are numeric strings.
func (a Activity) Int(key string, def int) int {
	v, ok := a.DifficultyParams[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return def
}

// Float reads a numeric difficulty param.
func (a Activity) Float(key string, def float64) float64 {
	v, ok := a.DifficultyParams[key]
	if !ok {
		return def
	}
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return def
}

// String reads a string difficulty param.
func (a Activity) String(key, def string) string {
	if v, ok := a.DifficultyParams[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// Bool reads a boolean difficulty param.
func (a Activity) Bool(key string, def bool) bool {
	if v, ok := a.DifficultyParams[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Strings reads a list of strings.
func (a Activity) Strings(key string) []string {
	return toStrings(a.DifficultyParams[key])
}

// Maps reads a list of objects (e.g. questions or trials).
func (a Activity) Maps(key string) []Params {
	raw, ok := a.DifficultyParams[key].([]any)
	if !ok {
		if typed, ok := a.DifficultyParams[key].([]map[string]any); ok {
			out := make([]Params, len(typed))
			for i := range typed {
				out[i] = Params(typed[i])
			}
			return out
		}
		return nil
	}
	out := make([]Params, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Params(m))
		}
	}
	return out
}

// Params is one nested object inside difficulty_params.
type Params map[string]any

// String reads a nested string field.
func (p Params) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Strings reads a nested list of strings.
func (p Params) Strings(key string) []string { return toStrings(p[key]) }

// Bool reads a nested boolean field.
func (p Params) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	}
	return nil
}
