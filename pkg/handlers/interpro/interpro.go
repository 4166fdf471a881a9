// Package interpro wires two InterPro upstreams into the broker:
// get_interpro_entry is a single synchronous lookup, while
// analyze_interpro_domains drives the InterProScan5 submit/poll/fetch job
// lifecycle and so runs as a long-running Task rather than a synchronous
// handler, reporting progress as the job moves through the EBI queue.
package interpro

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/taskmanager"
)

const (
	familyName         = "interpro"
	defaultScanBaseURL = "https://www.ebi.ac.uk/Tools/services/rest/iprscan5"
	defaultEntryURL    = "https://www.ebi.ac.uk/interpro/api/entry/interpro"
	maxPollAttempts    = 60 // 10 minutes at the default poll interval
)

// pollInterval is a var rather than a const so tests can shrink it; production
// wiring never overrides it.
var pollInterval = 10 * time.Second

// Register wires get_interpro_entry into d and installs
// analyze_interpro_domains into longRunning, the map the Task Manager's
// handler lookup is built from. contactEmail is required by the
// InterProScan5 job API's submission form.
func Register(d *dispatcher.Dispatcher, longRunning map[string]taskmanager.HandlerFunc, client *httpclient.Client, monitor *health.Monitor, scanBaseURL, entryBaseURL, contactEmail string) {
	if scanBaseURL == "" {
		scanBaseURL = defaultScanBaseURL
	}
	if entryBaseURL == "" {
		entryBaseURL = defaultEntryURL
	}

	d.Register("get_interpro_entry", entryHandler(client, entryBaseURL))
	longRunning["analyze_interpro_domains"] = scanHandler(client, scanBaseURL, contactEmail)
	monitor.Register(familyName, &pingable{client: client, baseURL: entryBaseURL}, nil)
}

func entryHandler(client *httpclient.Client, baseURL string) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		accession, ok := args["accession"].(string)
		if !ok || accession == "" {
			return nil, broker.New(broker.InvalidArguments, "accession must be a non-empty string")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", baseURL, url.PathEscape(accession)), nil)
		if err != nil {
			return nil, broker.New(broker.Internal, "building request: %v", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if resp == nil {
				return nil, broker.New(broker.UpstreamError, "get_interpro_entry: %v", err)
			}
			defer resp.Body.Close()
			return nil, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "get_interpro_entry: upstream status %d", resp.StatusCode)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "get_interpro_entry: upstream status %d", resp.StatusCode)
		}

		body, err := httpclient.ReadBody(resp)
		if err != nil {
			return nil, broker.New(broker.UpstreamError, "get_interpro_entry: reading response: %v", err)
		}
		return map[string]any{"success": true, "raw": string(body)}, nil
	}
}

// scanHandler drives the submit -> poll -> fetch lifecycle of an
// InterProScan5 job as a single long-running Task.
func scanHandler(client *httpclient.Client, baseURL, contactEmail string) taskmanager.HandlerFunc {
	return func(ctx context.Context, args map[string]any, report taskmanager.ProgressFunc) (any, error) {
		sequence, ok := args["sequence"].(string)
		if !ok || sequence == "" {
			return nil, broker.New(broker.InvalidArguments, "sequence must be a non-empty string")
		}

		report(0, "submitting job")
		jobID, err := submitJob(ctx, client, baseURL, contactEmail, sequence)
		if err != nil {
			return nil, err
		}

		for attempt := 0; attempt < maxPollAttempts; attempt++ {
			if ok := report(10+attempt*80/maxPollAttempts, "waiting for InterProScan"); !ok {
				return nil, broker.New(broker.Cancelled, "analyze_interpro_domains: cancelled while polling")
			}

			status, err := pollStatus(ctx, client, baseURL, jobID)
			if err != nil {
				return nil, err
			}
			switch status {
			case "FINISHED":
				report(95, "fetching results")
				result, err := fetchResult(ctx, client, baseURL, jobID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "jobId": jobID, "result": result}, nil
			case "FAILURE", "NOT_FOUND", "ERROR":
				return nil, broker.New(broker.UpstreamError, "analyze_interpro_domains: job %s ended in status %s", jobID, status)
			}

			select {
			case <-ctx.Done():
				return nil, broker.New(broker.Cancelled, "analyze_interpro_domains: %v", ctx.Err())
			case <-time.After(pollInterval):
			}
		}
		return nil, broker.New(broker.TimedOut, "analyze_interpro_domains: job %s did not finish within the polling budget", jobID)
	}
}

func submitJob(ctx context.Context, client *httpclient.Client, baseURL, contactEmail, sequence string) (string, error) {
	form := url.Values{"email": {contactEmail}, "sequence": {sequence}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/run", strings.NewReader(form.Encode()))
	if err != nil {
		return "", broker.New(broker.Internal, "building submit request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return "", broker.New(broker.UpstreamError, "submitting InterProScan job: %v", err)
		}
		defer resp.Body.Close()
		return "", broker.New(httpclient.ClassifyStatus(resp.StatusCode), "submitting InterProScan job: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", broker.New(httpclient.ClassifyStatus(resp.StatusCode), "submitting InterProScan job: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", broker.New(broker.UpstreamError, "reading job id: %v", err)
	}
	return strings.TrimSpace(string(body)), nil
}

func pollStatus(ctx context.Context, client *httpclient.Client, baseURL, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return "", broker.New(broker.Internal, "building status request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return "", broker.New(broker.UpstreamError, "polling job status: %v", err)
		}
		defer resp.Body.Close()
		return "", broker.New(httpclient.ClassifyStatus(resp.StatusCode), "polling job status: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", broker.New(broker.UpstreamError, "reading job status: %v", err)
	}
	return strings.TrimSpace(string(body)), nil
}

func fetchResult(ctx context.Context, client *httpclient.Client, baseURL, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/result/"+url.PathEscape(jobID)+"/json", nil)
	if err != nil {
		return "", broker.New(broker.Internal, "building result request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return "", broker.New(broker.UpstreamError, "fetching job result: %v", err)
		}
		defer resp.Body.Close()
		return "", broker.New(httpclient.ClassifyStatus(resp.StatusCode), "fetching job result: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", broker.New(broker.UpstreamError, "reading job result: %v", err)
	}
	return string(body), nil
}

type pingable struct {
	client  *httpclient.Client
	baseURL string
}

func (p *pingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/IPR000001", nil)
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
