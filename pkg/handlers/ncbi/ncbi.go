// Package ncbi wires NCBI's Entrez E-utilities into the broker as a
// hand-written handler family: esearch and efetch are a bespoke query
// dialect (db/term/id/retmode as flat query parameters returning a
// shape that varies by db), not something an OpenAPI document describes
// cleanly, so the request building stays in Go rather than in a spec.
package ncbi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"golang.org/x/time/rate"
)

const (
	familyName        = "ncbi"
	defaultBaseURL    = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	defaultDatabase   = "nucleotide"
	defaultSearchSize = 10

	// unkeyedRPS and keyedRPS are Entrez's published per-IP request caps:
	// 3 requests/second without an api_key, 10/second with one.
	unkeyedRPS = 3
	keyedRPS   = 10
)

// Register wires search_ncbi and fetch_ncbi_record into d against the
// Entrez E-utilities API. apiKey is optional (Entrez works unkeyed at a
// lower rate limit) and, when set, is attached as the "api_key" query
// parameter on every request and raises the client-side rate limit to
// match Entrez's documented keyed allowance.
func Register(d *dispatcher.Dispatcher, client *httpclient.Client, monitor *health.Monitor, baseURL, apiKey string) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	rps := unkeyedRPS
	if apiKey != "" {
		rps = keyedRPS
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps)

	d.Register("search_ncbi", searchHandler(client, limiter, baseURL, apiKey))
	d.Register("fetch_ncbi_record", fetchHandler(client, limiter, baseURL, apiKey))
	monitor.Register(familyName, &pingable{client: client, baseURL: baseURL}, nil)
}

func searchHandler(client *httpclient.Client, limiter *rate.Limiter, baseURL, apiKey string) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		query, ok := args["query"].(string)
		if !ok || query == "" {
			return nil, broker.New(broker.InvalidArguments, "query must be a non-empty string")
		}
		database, _ := args["database"].(string)
		if database == "" {
			database = defaultDatabase
		}
		limit := defaultSearchSize
		if v, ok := args["limit"]; ok {
			limit = asInt(v, limit)
		}

		u := fmt.Sprintf("%s/esearch.fcgi?db=%s&term=%s&retmax=%d&retmode=json",
			baseURL, queryEscape(database), queryEscape(query), limit)
		u = withAPIKey(u, apiKey)

		return doNCBIRequest(ctx, client, limiter, u, "search_ncbi")
	}
}

func fetchHandler(client *httpclient.Client, limiter *rate.Limiter, baseURL, apiKey string) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		id, ok := args["id"].(string)
		if !ok || id == "" {
			return nil, broker.New(broker.InvalidArguments, "id must be a non-empty string")
		}
		database, _ := args["database"].(string)
		if database == "" {
			database = defaultDatabase
		}

		u := fmt.Sprintf("%s/efetch.fcgi?db=%s&id=%s&retmode=json",
			baseURL, queryEscape(database), queryEscape(id))
		u = withAPIKey(u, apiKey)

		return doNCBIRequest(ctx, client, limiter, u, "fetch_ncbi_record")
	}
}

func doNCBIRequest(ctx context.Context, client *httpclient.Client, limiter *rate.Limiter, url, toolName string) (any, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, broker.New(broker.Cancelled, "%s: waiting for rate limiter: %v", toolName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, broker.New(broker.Internal, "building %s request: %v", toolName, err)
	}
	req.Header.Set("Accept", "application/json")

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

func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}

func withAPIKey(u, apiKey string) string {
	if apiKey == "" {
		return u
	}
	return u + "&api_key=" + apiKey
}

type pingable struct {
	client  *httpclient.Client
	baseURL string
}

func (p *pingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/einfo.fcgi?retmode=json", nil)
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
