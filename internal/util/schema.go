package util

import (
	"fmt"
	"reflect"
	"strings"
)

// ValidationError reports a tool argument that does not fit the tool's schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives an object schema from the flat argument struct v.
// Field names come from json tags and descriptions from description tags.
// Fields without omitempty are required.
func CreateSchema(v any) map[string]any {
	t := reflect.TypeOf(v)
	props := map[string]any{}
	schema := map[string]any{"type": "object", "properties": props}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if !f.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}

		prop := map[string]any{"type": jsonType(f.Type.Kind())}
		if f.Type.Kind() == reflect.Slice {
			prop["items"] = map[string]any{"type": jsonType(f.Type.Elem().Kind())}
		}
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		props[name] = prop

		if !strings.Contains(opts, "omitempty") {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonType(k reflect.Kind) string {
	switch k {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// ValidateParameters checks decoded JSON arguments against the required list
// and the top-level property types of schema. Unknown fields are allowed.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	for _, name := range required {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, value := range params {
		prop, _ := props[name].(map[string]any)
		want, _ := prop["type"].(string)
		if value == nil || want == "" || matches(value, want) {
			continue
		}
		return &ValidationError{
			Field:   name,
			Value:   value,
			Message: fmt.Sprintf("expected type %s, got %T", want, value),
		}
	}
	return nil
}

// matches reports whether a decoded JSON value has the schema type want.
func matches(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
