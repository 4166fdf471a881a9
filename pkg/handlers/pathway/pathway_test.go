package pathway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptorsYAML = `
name: get_pathway_diagram
description: Fetch a rendered pathway diagram by pathway identifier.
category: pathway
execution_side: server
priority: 35
schema:
  properties:
    pathwayId: { type: string }
  required: [pathwayId]
`

const relatedYAML = `
name: list_related_pathways
description: List pathways that involve a given gene or protein.
category: pathway
execution_side: server
priority: 30
schema:
  properties:
    gene: { type: string }
  required: [gene]
`

const queryYAML = `
name: query_pathway_database
description: Run a free-text query against an external pathway database.
category: external
execution_side: server
priority: 30
schema:
  properties:
    query: { type: string }
  required: [query]
`

func setup(t *testing.T, handler http.HandlerFunc) (*dispatcher.Dispatcher, *health.Monitor) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	reg := registry.New()
	fsys := fstest.MapFS{
		"tools/diagram.yaml": &fstest.MapFile{Data: []byte(descriptorsYAML)},
		"tools/related.yaml": &fstest.MapFile{Data: []byte(relatedYAML)},
		"tools/query.yaml":   &fstest.MapFile{Data: []byte(queryYAML)},
	}
	require.NoError(t, reg.Load(fsys, "tools", ""))

	d := dispatcher.New(reg, nil, nil, nil)
	mon := health.New(nil)
	Register(d, httpclient.New(httpclient.Config{}), mon, srv.URL)
	return d, mon
}

func TestGetPathwayDiagram_BuildsKEGGImageRequest(t *testing.T) {
	d, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get/hsa04110/image", r.URL.Path)
		w.Write([]byte("diagram-bytes"))
	})

	result, err := d.Dispatch(context.Background(), "get_pathway_diagram", map[string]any{"pathwayId": "hsa04110"}, dispatcher.Origin{})
	require.NoError(t, err)
	assert.Equal(t, "diagram-bytes", result.(map[string]any)["raw"])
}

func TestListRelatedPathways_BuildsKEGGLinkRequest(t *testing.T) {
	d, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/link/pathway/hsa:672", r.URL.Path)
		w.Write([]byte("hsa:672\tpath:hsa04110"))
	})

	result, err := d.Dispatch(context.Background(), "list_related_pathways", map[string]any{"gene": "hsa:672"}, dispatcher.Origin{})
	require.NoError(t, err)
	assert.Contains(t, result.(map[string]any)["raw"], "path:hsa04110")
}

func TestQueryPathwayDatabase_BuildsKEGGFindRequest(t *testing.T) {
	d, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/find/pathway/apoptosis", r.URL.Path)
	})

	_, err := d.Dispatch(context.Background(), "query_pathway_database", map[string]any{"query": "apoptosis"}, dispatcher.Origin{})
	require.NoError(t, err)
}

func TestGetPathwayDiagram_MissingPathwayIdIsInvalidArguments(t *testing.T) {
	d, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := d.Dispatch(context.Background(), "get_pathway_diagram", map[string]any{}, dispatcher.Origin{})
	require.Error(t, err)
	assert.Equal(t, broker.InvalidArguments, broker.KindOf(err))
}

func TestRegister_AddsPathwayHealthFamily(t *testing.T) {
	_, mon := setup(t, func(w http.ResponseWriter, r *http.Request) {})

	_, ok := mon.Record(familyName)
	assert.True(t, ok)
}
