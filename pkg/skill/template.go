package skill

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// resolveTemplate replaces every {{path}} placeholder in s with the
// stringified value found by descending bag along path split on ".".
// Unresolved placeholders (missing key, or a path that descends through
// a non-map value) are left intact; a path that ends at a map is
// stringified like any other value.
// This is pure string interpolation; no expression language.
func resolveTemplate(s string, bag map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := lookupPath(bag, path)
		if !ok {
			return match
		}
		return stringifyLeaf(value)
	})
}

// resolveTemplateValue applies resolveTemplate recursively across
// strings, arrays, and maps, per spec.
func resolveTemplateValue(v interface{}, bag map[string]interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return resolveTemplate(t, bag)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = resolveTemplateValue(elem, bag)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, elem := range t {
			out[k] = resolveTemplateValue(elem, bag)
		}
		return out
	default:
		return v
	}
}

func lookupPath(bag map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = bag
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, ok := m[part]
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}

func stringifyLeaf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
