package influxdb

// maxFieldDepth bounds how deep nested state objects are flattened.
const maxFieldDepth = 4

// StateFields flattens a decoded state document into point fields.
//
// Booleans, numbers and strings are kept; nulls and arrays are dropped.
// Nested objects contribute "parent.child" keys.
func StateFields(state map[string]any) map[string]any {
	fields := make(map[string]any, len(state))
	flatten(fields, "", state, 0)
	return fields
}

func flatten(dst map[string]any, prefix string, src map[string]any, depth int) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case bool, float64, string:
			dst[key] = val
		case int:
			dst[key] = float64(val)
		case map[string]any:
			if depth < maxFieldDepth {
				flatten(dst, key, val, depth+1)
			}
		}
	}
}
