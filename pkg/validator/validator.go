// Package validator checks tool-call arguments against a tool descriptor's
// parameter schema before the call reaches a handler.
package validator

import (
	"fmt"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/registry"
)

// FieldError is one schema mismatch.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks args against descriptor's schema and returns a new map
// with schema defaults filled in for absent properties. Unknown properties
// in args are passed through unchanged; this validator is permissive by
// design, matching the loose argument handling tool-calling clients expect.
//
// On failure it returns a *broker.Error of kind InvalidArguments, carrying
// every FieldError found (not just the first), via Details.
func Validate(desc *registry.Descriptor, args map[string]any) (map[string]any, error) {
	var errs []FieldError

	for _, name := range desc.Schema.Required {
		if _, ok := args[name]; !ok {
			errs = append(errs, FieldError{Field: name, Message: "required property is missing"})
		}
	}

	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	for name, prop := range desc.Schema.Properties {
		v, present := out[name]
		if !present {
			if prop.Default != nil {
				out[name] = prop.Default
			}
			continue
		}

		if err := checkType(name, prop.Type, v); err != "" {
			errs = append(errs, FieldError{Field: name, Message: err})
			continue
		}

		if len(prop.Enum) > 0 {
			if !checkEnum(v, prop.Enum) {
				errs = append(errs, FieldError{Field: name, Message: fmt.Sprintf("must be one of %v", prop.Enum)})
			}
		}
	}

	if len(errs) > 0 {
		first := errs[0]
		return nil, broker.New(broker.InvalidArguments, "%s", first.Error()).WithDetails(errs)
	}

	return out, nil
}

// checkType returns an empty string if v matches typ, or a message
// describing the mismatch. Array element types are not checked — the
// schema format here has no per-element type, only a container type.
func checkType(name string, typ registry.PropertyType, v any) string {
	switch typ {
	case registry.TypeString:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case registry.TypeNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
		default:
			return "must be a number"
		}
	case registry.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return "must be a boolean"
		}
	case registry.TypeArray:
		if _, ok := v.([]any); !ok {
			return "must be an array"
		}
	case registry.TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return "must be an object"
		}
	}
	return ""
}

func checkEnum(v any, enum []string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}
