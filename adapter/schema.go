package adapter

import "sort"

// Argument types understood by schema validation. Number accepts both
// integer and floating-point values; Integer requires a whole number.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// ArgSpec declares one argument of an operation.
type ArgSpec struct {
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Schema maps argument names to their specs.
type Schema map[string]ArgSpec

// Validate checks args against the schema and returns the offending keys:
// required keys that are absent and present keys whose value has the wrong
// type. Keys not declared in the schema pass through untouched. The result
// is sorted for stable error messages.
func (s Schema) Validate(args map[string]interface{}) []string {
	var offending []string

	for name, spec := range s {
		v, ok := args[name]
		if !ok {
			if spec.Required {
				offending = append(offending, name)
			}
			continue
		}
		if !typeMatches(spec.Type, v) {
			offending = append(offending, name)
		}
	}

	sort.Strings(offending)
	return offending
}

func typeMatches(declared string, v interface{}) bool {
	switch declared {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		return isNumber(v)
	case TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		case float32:
			return n == float32(int32(n))
		}
		return false
	case TypeObject:
		_, ok := v.(map[string]interface{})
		return ok
	case TypeArray:
		_, ok := v.([]interface{})
		return ok
	}
	// Unknown declared type: accept anything rather than reject valid input.
	return true
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}
