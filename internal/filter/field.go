package filter

import "strings"

// getField resolves a dot-notation field path against a document
// payload. An intermediate value that isn't itself a nested object
// terminates the lookup and reports absence, matching the reference
// implementation's get_field: only a chain of objects can be
// descended into.
func getField(payload map[string]any, field string) (any, bool) {
	if payload == nil {
		return nil, false
	}

	var current any = payload
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := obj[part]
		if !exists {
			return nil, false
		}
		current = v
	}
	return current, true
}
