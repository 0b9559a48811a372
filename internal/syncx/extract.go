package syncx

import (
	"errors"
	"math"
)

// GetString safely extracts a string value from a map
func GetString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// GetMs extracts a millisecond timestamp stored either as a JSON number or as
// a string (RFC3339 or numeric)
func GetMs(m map[string]any, k string) (int64, bool) {
	v, ok := m[k]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		if t < 0 || t >= math.MaxInt64 || t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), true
	case int64:
		return t, true
	case string:
		return ParseTimeToMs(t)
	}
	return 0, false
}

// ExtractTodo parses a todo from client JSON.
// Tolerant of various field naming conventions (updated_at, updatedAt, updatedTs)
func ExtractTodo(item map[string]any) (Todo, error) {
	var out Todo

	// 1. Extract id (required)
	id, _ := GetString(item, "id")
	if id == "" {
		return out, errors.New("missing or invalid id")
	}
	out.ID = id

	// 2. Optional fields
	if title, ok := GetString(item, "title"); ok {
		out.Title = title
	} else if _, present := item["title"]; present && item["title"] != nil {
		return out, errors.New("title must be a string")
	}

	if s, ok := GetString(item, "status"); ok {
		out.Status = Status(s)
	}

	// 3. Timestamps (try multiple field names)
	for _, k := range []string{"updated_at", "updatedAt", "updatedTs"} {
		if ms, ok := GetMs(item, k); ok {
			out.UpdatedAt = ms
			break
		}
	}
	for _, k := range []string{"created_at", "createdAt"} {
		if ms, ok := GetMs(item, k); ok {
			out.CreatedAt = ms
			break
		}
	}

	return out, nil
}
