package loader

import "os"

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// asMap normalizes the handful of shapes a TOML/YAML table decodes to (map[string]any,
// or nil for an absent/wrongly-typed key) into a single map[string]any, never nil.
func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// asMapSlice normalizes the shapes an array-of-tables decodes to across both decoders:
// BurntSushi/toml yields []map[string]any; yaml.v3 (and toml's own fallback path) yields
// []any holding map[string]any elements.
func asMapSlice(v any) []map[string]any {
	switch x := v.(type) {
	case []map[string]any:
		return x
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, e := range x {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

// stringSliceField normalizes the `from` field of a transform descriptor, which may
// decode as []any ([]string) or, when a table author writes a single path, a bare string.
func stringSliceField(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		return []string{v}
	default:
		return nil
	}
}
