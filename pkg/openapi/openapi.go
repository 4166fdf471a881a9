// Package openapi converts OpenAPI 3 operations into registry
// descriptors and the request-building metadata a handler family needs
// to actually call them, rather than hand-writing a Go struct (and a
// copy of its parameter schema) per REST endpoint. Vendor extensions on
// each operation (x-genobridge-category, x-genobridge-priority,
// x-genobridge-keywords) carry the broker-specific metadata the bare
// OpenAPI document has no room for.
package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/genobridge/genobridge/pkg/registry"
)

// Operation holds the parsed request-shape of one OpenAPI operation: how
// to build the HTTP request for a given argument map.
type Operation struct {
	Name        string
	Method      string
	Path        string
	PathParams  []string
	QueryParams []string
}

// Load parses an embedded OpenAPI document and converts every operation
// that carries an operationId into a registry.Descriptor plus the
// Operation needed to execute it. baseURL overrides the document's own
// server entry when non-empty.
func Load(doc []byte, baseURL string) (map[string]*registry.Descriptor, map[string]*Operation, string, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(doc)
	if err != nil {
		return nil, nil, "", fmt.Errorf("parsing OpenAPI document: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, nil, "", fmt.Errorf("validating OpenAPI document: %w", err)
	}

	if baseURL == "" && len(spec.Servers) > 0 {
		baseURL = spec.Servers[0].URL
	}
	if baseURL == "" {
		return nil, nil, "", fmt.Errorf("no base URL: spec has no servers entry and none was supplied")
	}

	descriptors := make(map[string]*registry.Descriptor)
	operations := make(map[string]*Operation)

	if spec.Paths == nil {
		return descriptors, operations, baseURL, nil
	}

	for path, item := range spec.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil || op.OperationID == "" {
				continue
			}
			desc, operation := convert(method, path, op)
			if desc == nil {
				continue
			}
			descriptors[desc.Name] = desc
			operations[desc.Name] = operation
		}
	}

	return descriptors, operations, baseURL, nil
}

func convert(method, path string, op *openapi3.Operation) (*registry.Descriptor, *Operation) {
	name := op.OperationID
	pathParams := extractPathParams(path)

	properties := make(map[string]registry.Property)
	var required []string
	var queryParams []string

	for _, ref := range op.Parameters {
		if ref == nil || ref.Value == nil {
			continue
		}
		param := ref.Value
		properties[param.Name] = parameterToProperty(param)
		if param.Required {
			required = append(required, param.Name)
		}
		if param.In == "query" {
			queryParams = append(queryParams, param.Name)
		}
	}
	for _, p := range pathParams {
		if _, ok := properties[p]; !ok {
			properties[p] = registry.Property{Type: registry.TypeString}
		}
		required = append(required, p)
	}

	desc := &registry.Descriptor{
		Name:          name,
		Description:   buildDescription(op),
		Category:      extensionCategory(op.Extensions),
		ExecutionSide: registry.ExecutionServer,
		Priority:      extensionPriority(op.Extensions),
		Keywords:      extensionKeywords(op.Extensions),
		Schema:        registry.Schema{Properties: properties, Required: required},
	}

	return desc, &Operation{Name: name, Method: strings.ToUpper(method), Path: path, PathParams: pathParams, QueryParams: queryParams}
}

var pathParamRegexp = regexp.MustCompile(`\{([^}]+)\}`)

func extractPathParams(path string) []string {
	matches := pathParamRegexp.FindAllStringSubmatch(path, -1)
	params := make([]string, 0, len(matches))
	for _, m := range matches {
		params = append(params, m[1])
	}
	return params
}

func parameterToProperty(param *openapi3.Parameter) registry.Property {
	prop := registry.Property{Type: registry.TypeString}
	if param.Schema != nil && param.Schema.Value != nil {
		s := param.Schema.Value
		if s.Type != nil && len(*s.Type) > 0 {
			prop.Type = registry.PropertyType((*s.Type)[0])
		}
		if s.Description != "" {
			prop.Description = s.Description
		}
		if s.Default != nil {
			prop.Default = s.Default
		}
		for _, e := range s.Enum {
			if str, ok := e.(string); ok {
				prop.Enum = append(prop.Enum, str)
			}
		}
	}
	if prop.Description == "" {
		prop.Description = param.Description
	}
	return prop
}

func buildDescription(op *openapi3.Operation) string {
	switch {
	case op.Summary != "" && op.Description != "":
		return op.Summary + ": " + op.Description
	case op.Summary != "":
		return op.Summary
	default:
		return op.Description
	}
}

func extensionCategory(ext map[string]any) registry.Category {
	if v, ok := ext["x-genobridge-category"].(string); ok {
		return registry.Category(v)
	}
	return registry.CategoryDatabase
}

func extensionPriority(ext map[string]any) int {
	switch v := ext["x-genobridge-priority"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 30
}

func extensionKeywords(ext map[string]any) []string {
	raw, ok := ext["x-genobridge-keywords"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// BuildRequest constructs the HTTP request for op against baseURL using
// args as the source of path and query parameter values.
func BuildRequest(ctx context.Context, baseURL string, op *Operation, args map[string]any) (*http.Request, error) {
	path := op.Path
	for _, p := range op.PathParams {
		v, ok := args[p]
		if !ok {
			return nil, fmt.Errorf("missing required path parameter %q", p)
		}
		path = strings.Replace(path, "{"+p+"}", url.PathEscape(fmt.Sprintf("%v", v)), 1)
	}
	if strings.Contains(path, "{") {
		return nil, fmt.Errorf("unsubstituted path parameters remain in %q", path)
	}

	query := url.Values{}
	for _, p := range op.QueryParams {
		if v, ok := args[p]; ok {
			query.Set(p, fmt.Sprintf("%v", v))
		}
	}

	fullURL := strings.TrimSuffix(baseURL, "/") + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// DecodeJSON drains resp.Body into v and closes it.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// EncodeBody marshals v for request bodies that need one; unused by the
// current read-only UniProt/PDB operations but kept for operations that
// later gain a POST body.
func EncodeBody(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
