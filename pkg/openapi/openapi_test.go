package openapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpec = `
openapi: 3.0.0
info:
  title: Test API
  version: "1.0"
servers:
  - url: https://example.org/api
paths:
  /widgets:
    get:
      operationId: search_widgets
      summary: Search widgets
      x-genobridge-category: database
      x-genobridge-priority: 55
      x-genobridge-keywords: [widget, search]
      parameters:
        - name: query
          in: query
          required: true
          schema: { type: string }
        - name: limit
          in: query
          required: false
          schema: { type: number, default: 10 }
      responses:
        "200":
          description: ok
  /widgets/{id}:
    get:
      operationId: get_widget
      summary: Fetch a widget
      x-genobridge-category: database
      x-genobridge-priority: 55
      parameters:
        - name: id
          in: path
          required: true
          schema: { type: string }
      responses:
        "200":
          description: ok
`

func TestLoad_ConvertsOperationsToDescriptors(t *testing.T) {
	descs, ops, baseURL, err := Load([]byte(testSpec), "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/api", baseURL)

	require.Contains(t, descs, "search_widgets")
	d := descs["search_widgets"]
	assert.Equal(t, registry.CategoryDatabase, d.Category)
	assert.Equal(t, 55, d.Priority)
	assert.Equal(t, []string{"widget", "search"}, d.Keywords)
	assert.Contains(t, d.Schema.Required, "query")
	assert.NotContains(t, d.Schema.Required, "limit")

	require.Contains(t, ops, "search_widgets")
	assert.Equal(t, []string{"query"}, ops["search_widgets"].QueryParams)
}

func TestLoad_PathParamsAreRequiredEvenWithoutExplicitRequiredFlag(t *testing.T) {
	descs, ops, _, err := Load([]byte(testSpec), "")
	require.NoError(t, err)

	d := descs["get_widget"]
	require.NotNil(t, d)
	assert.Contains(t, d.Schema.Required, "id")
	assert.Equal(t, []string{"id"}, ops["get_widget"].PathParams)
}

func TestLoad_OverridesBaseURLWhenSupplied(t *testing.T) {
	_, _, baseURL, err := Load([]byte(testSpec), "https://override.example/v2")
	require.NoError(t, err)
	assert.Equal(t, "https://override.example/v2", baseURL)
}

func TestBuildRequest_SubstitutesPathAndQueryParams(t *testing.T) {
	_, ops, baseURL, err := Load([]byte(testSpec), "")
	require.NoError(t, err)

	req, err := BuildRequest(context.Background(), baseURL, ops["search_widgets"], map[string]any{"query": "bolt", "limit": 5})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/api/widgets?limit=5&query=bolt", req.URL.String())
	assert.Equal(t, http.MethodGet, req.Method)
}

func TestBuildRequest_MissingPathParamFails(t *testing.T) {
	_, ops, baseURL, err := Load([]byte(testSpec), "")
	require.NoError(t, err)

	_, err = BuildRequest(context.Background(), baseURL, ops["get_widget"], map[string]any{})
	assert.Error(t, err)
}

func TestBuildRequest_PathParamIsURLEscaped(t *testing.T) {
	_, ops, baseURL, err := Load([]byte(testSpec), "")
	require.NoError(t, err)

	req, err := BuildRequest(context.Background(), baseURL, ops["get_widget"], map[string]any{"id": "a b/c"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/api/widgets/a%20b%2Fc", req.URL.String())
}

func TestLoad_MissingBaseURLFailsWithoutServersOrOverride(t *testing.T) {
	noServerSpec := `
openapi: 3.0.0
info: { title: x, version: "1.0" }
paths: {}
`
	_, _, _, err := Load([]byte(noServerSpec), "")
	assert.Error(t, err)
}
