package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// templatePattern matches {{key}} or {{key.subkey}} placeholders.
var templatePattern = regexp.MustCompile(`\{\{(\w+(?:\.\w+)*)\}\}`)

// ResolveTemplate replaces {{key}} placeholders in a template string
// with values from the run context. Dotted paths descend into nested
// maps. Unknown references resolve to the empty string.
func ResolveTemplate(template string, state map[string]any) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.Trim(match, "{}")
		return Stringify(lookupPath(state, path))
	})
}

func lookupPath(state map[string]any, path string) any {
	var cur any = state
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// Stringify renders a context value for templates and final outputs.
// Maps and slices render as JSON, everything else via %v.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}
