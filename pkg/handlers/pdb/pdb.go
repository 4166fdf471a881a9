// Package pdb wires two protein-structure upstreams into the broker:
// get_pdb_structure is OpenAPI-driven against the RCSB Data API (spec.yaml),
// get_alphafold_model is hand-written against the AlphaFold EBI API, whose
// single-path, single-parameter shape doesn't earn its own OpenAPI
// document. Each upstream is tracked as its own handler family so one
// going down doesn't mask the other's health in GET /health.
package pdb

import (
	"context"
	_ "embed"
	"fmt"
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

const (
	pdbFamily       = "pdb"
	alphafoldFamily = "alphafold"

	defaultAlphaFoldBaseURL = "https://alphafold.ebi.ac.uk/api"
)

// Register loads the PDB OpenAPI document, wires get_pdb_structure from
// it, and wires the hand-written get_alphafold_model handler alongside
// it. pdbBaseURL overrides spec.yaml's server; alphafoldBaseURL overrides
// the AlphaFold default. Pass "" for either to use the built-in default.
func Register(reg *registry.Registry, d *dispatcher.Dispatcher, client *httpclient.Client, monitor *health.Monitor, pdbBaseURL, alphafoldBaseURL string) error {
	descs, ops, resolvedPDBURL, err := openapi.Load(spec, pdbBaseURL)
	if err != nil {
		return err
	}
	for name, desc := range descs {
		if err := reg.Add(desc); err != nil {
			return err
		}
		d.Register(name, pdbHandler(client, resolvedPDBURL, ops[name]))
	}
	monitor.Register(pdbFamily, &pdbPingable{client: client, baseURL: resolvedPDBURL}, nil)

	if alphafoldBaseURL == "" {
		alphafoldBaseURL = defaultAlphaFoldBaseURL
	}
	d.Register("get_alphafold_model", alphafoldHandler(client, alphafoldBaseURL))
	monitor.Register(alphafoldFamily, &alphafoldPingable{client: client, baseURL: alphafoldBaseURL}, nil)

	return nil
}

func pdbHandler(client *httpclient.Client, baseURL string, op *openapi.Operation) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		req, err := openapi.BuildRequest(ctx, baseURL, op, args)
		if err != nil {
			return nil, broker.New(broker.InvalidArguments, "%s: %v", op.Name, err)
		}
		return doAndDecode(client, req, op.Name)
	}
}

func alphafoldHandler(client *httpclient.Client, baseURL string) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		accession, ok := args["accession"].(string)
		if !ok || accession == "" {
			return nil, broker.New(broker.InvalidArguments, "accession must be a non-empty string")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/prediction/%s", baseURL, accession), nil)
		if err != nil {
			return nil, broker.New(broker.Internal, "building alphafold request: %v", err)
		}
		req.Header.Set("Accept", "application/json")
		return doAndDecode(client, req, "get_alphafold_model")
	}
}

func doAndDecode(client *httpclient.Client, req *http.Request, toolName string) (any, error) {
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

	var body any
	if err := openapi.DecodeJSON(resp, &body); err != nil {
		return nil, broker.New(broker.UpstreamError, "%s: decoding response: %v", toolName, err)
	}
	return map[string]any{"success": true, "result": body}, nil
}

type pdbPingable struct {
	client  *httpclient.Client
	baseURL string
}

func (p *pdbPingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/rest/v1/core/entry/1abc", nil)
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

type alphafoldPingable struct {
	client  *httpclient.Client
	baseURL string
}

func (p *alphafoldPingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/prediction/P01308", nil)
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
