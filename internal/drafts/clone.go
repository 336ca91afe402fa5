package drafts

import "time"

// cloneValue copies nested maps and slices so draft rows never share mutable
// containers with templates, callers, or each other. Time values are copied
// by value; every other scalar passes through.
func cloneValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(typed))
		for key, entry := range typed {
			copied[key] = cloneValue(entry)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(typed))
		for index, entry := range typed {
			copied[index] = cloneValue(entry)
		}
		return copied
	case time.Time:
		return typed
	default:
		return value
	}
}

func cloneValues(values map[string]interface{}) map[string]interface{} {
	copied := make(map[string]interface{}, len(values))
	for key, entry := range values {
		copied[key] = cloneValue(entry)
	}
	return copied
}
