// Package registry holds the catalogue of ToolDescriptors the broker
// exposes, loaded at startup from declarative YAML records. Descriptors are
// never mutated in place; Watch reloads the overlay directory by swapping
// in a freshly loaded catalogue.
package registry

import "fmt"

// Category is the closed set of tool groupings from §3.
type Category string

const (
	CategoryNavigation    Category = "navigation"
	CategorySequence      Category = "sequence"
	CategoryData          Category = "data"
	CategoryProtein       Category = "protein"
	CategoryDatabase      Category = "database"
	CategoryAIGen         Category = "ai_gen"
	CategoryPathway       Category = "pathway"
	CategoryAction        Category = "action"
	CategoryPluginMgmt    Category = "plugin-mgmt"
	CategoryCoordination  Category = "coordination"
	CategoryExternal      Category = "external"
)

var validCategories = map[Category]bool{
	CategoryNavigation: true, CategorySequence: true, CategoryData: true,
	CategoryProtein: true, CategoryDatabase: true, CategoryAIGen: true,
	CategoryPathway: true, CategoryAction: true, CategoryPluginMgmt: true,
	CategoryCoordination: true, CategoryExternal: true,
}

// ExecutionSide says whether a tool runs in-process or is forwarded to an
// interactive client.
type ExecutionSide string

const (
	ExecutionServer ExecutionSide = "server"
	ExecutionClient ExecutionSide = "client"
)

// PropertyType is the closed set of JSON Schema-ish primitive types the
// Schema Validator understands.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
)

// Property describes one parameter of a tool's schema.
type Property struct {
	Type        PropertyType `yaml:"type" json:"type"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Enum        []string     `yaml:"enum,omitempty" json:"enum,omitempty"`
	Default     any          `yaml:"default,omitempty" json:"default,omitempty"`
}

// Schema is a tool's parameter schema: a flat map of property name to
// Property, plus the list of required property names.
type Schema struct {
	Properties map[string]Property `yaml:"properties" json:"properties"`
	Required   []string            `yaml:"required,omitempty" json:"required,omitempty"`
}

// Descriptor is an immutable tool record. Once the Registry has loaded,
// no field is ever mutated.
type Descriptor struct {
	Name          string        `yaml:"name" json:"name"`
	Description   string        `yaml:"description" json:"description"`
	Category      Category      `yaml:"category" json:"category"`
	ExecutionSide ExecutionSide `yaml:"execution_side" json:"execution_side"`
	Priority      int           `yaml:"priority" json:"priority"`
	Keywords      []string      `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Schema        Schema        `yaml:"schema" json:"schema"`
	LongRunning   bool          `yaml:"long_running,omitempty" json:"long_running,omitempty"`
}

// MCPInputSchema returns the tool's schema in MCP's `inputSchema` shape:
// a JSON Schema object with "type": "object".
func (d *Descriptor) MCPInputSchema() map[string]any {
	props := make(map[string]any, len(d.Schema.Properties))
	for name, p := range d.Schema.Properties {
		entry := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			entry["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			entry["enum"] = p.Enum
		}
		if p.Default != nil {
			entry["default"] = p.Default
		}
		props[name] = entry
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(d.Schema.Required) > 0 {
		schema["required"] = d.Schema.Required
	}
	return schema
}

// Validate checks the structural invariants from §3: a known category, a
// known execution side, and every required property present in the
// schema's properties map.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool descriptor missing name")
	}
	if !validCategories[d.Category] {
		return fmt.Errorf("tool %q: unknown category %q", d.Name, d.Category)
	}
	if d.ExecutionSide != ExecutionServer && d.ExecutionSide != ExecutionClient {
		return fmt.Errorf("tool %q: execution_side must be \"server\" or \"client\", got %q", d.Name, d.ExecutionSide)
	}
	for _, req := range d.Schema.Required {
		if _, ok := d.Schema.Properties[req]; !ok {
			return fmt.Errorf("tool %q: required property %q has no schema entry", d.Name, req)
		}
	}
	for name, p := range d.Schema.Properties {
		switch p.Type {
		case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		default:
			return fmt.Errorf("tool %q: property %q has unknown type %q", d.Name, name, p.Type)
		}
	}
	return nil
}
