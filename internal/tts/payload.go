package tts

import (
	"fmt"
	"net/http"
)

// clonePayload deep-copies a request template so concurrent calls never share
// nested maps.
func clonePayload(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return cloneValue(src).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// setPath assigns value at a path of map keys (string) and slice indexes (int),
// creating intermediate maps for missing keys.
func setPath(root map[string]any, value any, path ...any) error {
	if len(path) == 0 {
		return fmt.Errorf("empty payload path")
	}
	var cur any = root
	for i, step := range path {
		last := i == len(path)-1
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return fmt.Errorf("payload path %v: element %d is not an object", path, i)
			}
			if last {
				m[key] = value
				return nil
			}
			next, ok := m[key]
			if !ok || next == nil {
				if _, isIndex := path[i+1].(int); isIndex {
					return fmt.Errorf("payload path %v: missing array %q", path, key)
				}
				next = map[string]any{}
				m[key] = next
			}
			cur = next
		case int:
			s, ok := cur.([]any)
			if !ok || key < 0 || key >= len(s) {
				return fmt.Errorf("payload path %v: element %d is not an array with index %d", path, i, key)
			}
			if last {
				s[key] = value
				return nil
			}
			cur = s[key]
		default:
			return fmt.Errorf("payload path %v: unsupported step %T", path, step)
		}
	}
	return nil
}

// getString reads a string at a path of map keys.
func getString(root map[string]any, keys ...string) string {
	var cur any = root
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[k]
	}
	s, _ := cur.(string)
	return s
}

// expandHeaders returns the configured headers with credential placeholders filled.
func expandHeaders(headers map[string]string, creds Credentials) http.Header {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, creds.expand(v))
	}
	return h
}
