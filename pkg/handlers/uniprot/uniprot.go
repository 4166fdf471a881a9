// Package uniprot wires the UniProtKB REST API into the broker as an
// OpenAPI-driven handler family: its two tools (search_uniprot,
// get_uniprot_entry) are generated from an embedded OpenAPI document
// rather than hand-written, so a new UniProtKB endpoint only needs a new
// operation in spec.yaml.
package uniprot

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/openapi"
	"github.com/genobridge/genobridge/pkg/registry"
)

//go:embed spec.yaml
var spec []byte

const familyName = "uniprot"

// Register loads spec.yaml, adds its generated descriptors to reg, wires
// a handler for each into d, and registers a reachability probe with
// monitor. baseURL overrides the spec's server entry; pass "" to use it.
func Register(reg *registry.Registry, d *dispatcher.Dispatcher, client *httpclient.Client, monitor *health.Monitor, baseURL string) error {
	descs, ops, resolvedBaseURL, err := openapi.Load(spec, baseURL)
	if err != nil {
		return err
	}

	for name, desc := range descs {
		if err := reg.Add(desc); err != nil {
			return err
		}
		op := ops[name]
		d.Register(name, handler(client, resolvedBaseURL, op))
	}

	monitor.Register(familyName, &pingable{client: client, baseURL: resolvedBaseURL}, nil)
	return nil
}

func handler(client *httpclient.Client, baseURL string, op *openapi.Operation) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		req, err := openapi.BuildRequest(ctx, baseURL, op, args)
		if err != nil {
			return nil, broker.New(broker.InvalidArguments, "%s: %v", op.Name, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if resp == nil {
				return nil, broker.New(broker.UpstreamError, "%s: %v", op.Name, err)
			}
			defer resp.Body.Close()
			return nil, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "%s: upstream status %d", op.Name, resp.StatusCode)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "%s: upstream status %d", op.Name, resp.StatusCode)
		}

		var body any
		if err := openapi.DecodeJSON(resp, &body); err != nil {
			return nil, broker.New(broker.UpstreamError, "%s: decoding response: %v", op.Name, err)
		}
		return map[string]any{"success": true, "result": body}, nil
	}
}

// pingable probes UniProtKB's search endpoint with a minimal query; any
// HTTP response (even an error status) counts as reachable, only
// transport-level failures mark the family unhealthy.
type pingable struct {
	client  *httpclient.Client
	baseURL string
}

func (p *pingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/uniprotkb/search?query=insulin&size=1", nil)
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
