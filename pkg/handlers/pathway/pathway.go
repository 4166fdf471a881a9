// Package pathway wires three pathway-database tools against the KEGG
// REST API: get_pathway_diagram and list_related_pathways are KEGG's
// own lookups, while query_pathway_database is a free-text search that
// also happens to land on KEGG's "find" endpoint — grouped under the
// "external" category because the spec treats any free-text query
// against a third-party database as an external tool regardless of
// which upstream answers it.
package pathway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
)

const (
	familyName     = "pathway"
	defaultBaseURL = "https://rest.kegg.jp"
)

// Register wires get_pathway_diagram, list_related_pathways and
// query_pathway_database into d against the KEGG REST API.
func Register(d *dispatcher.Dispatcher, client *httpclient.Client, monitor *health.Monitor, baseURL string) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	d.Register("get_pathway_diagram", diagramHandler(client, baseURL))
	d.Register("list_related_pathways", relatedHandler(client, baseURL))
	d.Register("query_pathway_database", queryHandler(client, baseURL))
	monitor.Register(familyName, &pingable{client: client, baseURL: baseURL}, nil)
}

func diagramHandler(client *httpclient.Client, baseURL string) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		pathwayID, ok := args["pathwayId"].(string)
		if !ok || pathwayID == "" {
			return nil, broker.New(broker.InvalidArguments, "pathwayId must be a non-empty string")
		}
		return doKEGGRequest(ctx, client, baseURL+"/get/"+url.PathEscape(pathwayID)+"/image", "get_pathway_diagram")
	}
}

func relatedHandler(client *httpclient.Client, baseURL string) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		gene, ok := args["gene"].(string)
		if !ok || gene == "" {
			return nil, broker.New(broker.InvalidArguments, "gene must be a non-empty string")
		}
		return doKEGGRequest(ctx, client, baseURL+"/link/pathway/"+url.PathEscape(gene), "list_related_pathways")
	}
}

func queryHandler(client *httpclient.Client, baseURL string) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		query, ok := args["query"].(string)
		if !ok || query == "" {
			return nil, broker.New(broker.InvalidArguments, "query must be a non-empty string")
		}
		return doKEGGRequest(ctx, client, baseURL+"/find/pathway/"+url.PathEscape(query), "query_pathway_database")
	}
}

func doKEGGRequest(ctx context.Context, client *httpclient.Client, reqURL, toolName string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, broker.New(broker.Internal, "building %s request: %v", toolName, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return nil, broker.New(broker.UpstreamError, "%s: %v", toolName, err)
		}
		defer resp.Body.Close()
		return nil, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "%s: upstream status %d", toolName, resp.StatusCode)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "%s: upstream status %d", toolName, resp.StatusCode)
	}

	body, err := httpclient.ReadBody(resp)
	if err != nil {
		return nil, broker.New(broker.UpstreamError, "%s: reading response: %v", toolName, err)
	}
	return map[string]any{"success": true, "raw": string(body)}, nil
}

type pingable struct {
	client  *httpclient.Client
	baseURL string
}

func (p *pingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/info/pathway", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
