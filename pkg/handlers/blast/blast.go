// Package blast wires run_blast_search into the broker against NCBI's
// BLAST URL API. Like InterProScan, a BLAST search is submit-then-poll:
// CMD=Put returns a Request ID (RID) and an estimated time of completion
// (RTOE), CMD=Get polls status by RID until the search is READY, and a
// final CMD=Get with an alignment format retrieves the hits. The whole
// lifecycle runs as one long-running Task.
package blast

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/taskmanager"
)

const (
	familyName        = "blast"
	defaultBaseURL     = "https://blast.ncbi.nlm.nih.gov/Blast.cgi"
	defaultDatabase    = "nt"
	defaultProgram     = "blastn"
	maxPollAttempts    = 60
	defaultMinInterval = 5 * time.Second
)

var pollInterval = defaultMinInterval

var (
	ridPattern  = regexp.MustCompile(`RID = (\S+)`)
	rtoePattern = regexp.MustCompile(`RTOE = (\d+)`)
)

// Register installs run_blast_search into longRunning, the map the Task
// Manager's handler lookup is built from, and a Health Monitor probe for
// the BLAST URL API.
func Register(longRunning map[string]taskmanager.HandlerFunc, client *httpclient.Client, monitor *health.Monitor, baseURL string) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	longRunning["run_blast_search"] = searchHandler(client, baseURL)
	monitor.Register(familyName, &pingable{client: client, baseURL: baseURL}, nil)
}

func searchHandler(client *httpclient.Client, baseURL string) taskmanager.HandlerFunc {
	return func(ctx context.Context, args map[string]any, report taskmanager.ProgressFunc) (any, error) {
		sequence, ok := args["sequence"].(string)
		if !ok || sequence == "" {
			return nil, broker.New(broker.InvalidArguments, "sequence must be a non-empty string")
		}
		database, _ := args["database"].(string)
		if database == "" {
			database = defaultDatabase
		}

		report(0, "submitting BLAST search")
		rid, eta, err := submitSearch(ctx, client, baseURL, sequence, database)
		if err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, broker.New(broker.Cancelled, "run_blast_search: %v", ctx.Err())
		case <-time.After(eta):
		}

		for attempt := 0; attempt < maxPollAttempts; attempt++ {
			if ok := report(10+attempt*80/maxPollAttempts, "waiting for BLAST"); !ok {
				return nil, broker.New(broker.Cancelled, "run_blast_search: cancelled while polling")
			}

			status, err := pollStatus(ctx, client, baseURL, rid)
			if err != nil {
				return nil, err
			}
			switch status {
			case "READY":
				report(95, "fetching alignment")
				hits, err := fetchHits(ctx, client, baseURL, rid)
				if err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "requestId": rid, "hits": hits}, nil
			case "FAILED", "UNKNOWN":
				return nil, broker.New(broker.UpstreamError, "run_blast_search: request %s ended in status %s", rid, status)
			}

			select {
			case <-ctx.Done():
				return nil, broker.New(broker.Cancelled, "run_blast_search: %v", ctx.Err())
			case <-time.After(pollInterval):
			}
		}
		return nil, broker.New(broker.TimedOut, "run_blast_search: request %s did not finish within the polling budget", rid)
	}
}

func submitSearch(ctx context.Context, client *httpclient.Client, baseURL, sequence, database string) (string, time.Duration, error) {
	form := url.Values{
		"CMD":     {"Put"},
		"PROGRAM": {defaultProgram},
		"DATABASE": {database},
		"QUERY":   {sequence},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, broker.New(broker.Internal, "building submit request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return "", 0, broker.New(broker.UpstreamError, "submitting BLAST search: %v", err)
		}
		defer resp.Body.Close()
		return "", 0, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "submitting BLAST search: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, broker.New(httpclient.ClassifyStatus(resp.StatusCode), "submitting BLAST search: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, broker.New(broker.UpstreamError, "reading submit response: %v", err)
	}

	ridMatch := ridPattern.FindStringSubmatch(string(body))
	if ridMatch == nil {
		return "", 0, broker.New(broker.UpstreamError, "submit response did not contain an RID")
	}
	eta := defaultMinInterval
	if rtoeMatch := rtoePattern.FindStringSubmatch(string(body)); rtoeMatch != nil {
		if secs, err := strconv.Atoi(rtoeMatch[1]); err == nil {
			eta = time.Duration(secs) * time.Second
		}
	}
	return ridMatch[1], eta, nil
}

func pollStatus(ctx context.Context, client *httpclient.Client, baseURL, rid string) (string, error) {
	u := baseURL + "?CMD=Get&FORMAT_OBJECT=SearchInfo&RID=" + url.QueryEscape(rid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", broker.New(broker.Internal, "building status request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return "", broker.New(broker.UpstreamError, "polling BLAST status: %v", err)
		}
		defer resp.Body.Close()
		return "", broker.New(httpclient.ClassifyStatus(resp.StatusCode), "polling BLAST status: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", broker.New(broker.UpstreamError, "reading status response: %v", err)
	}
	text := string(body)
	switch {
	case strings.Contains(text, "Status=READY"):
		return "READY", nil
	case strings.Contains(text, "Status=FAILED"):
		return "FAILED", nil
	case strings.Contains(text, "Status=UNKNOWN"):
		return "UNKNOWN", nil
	default:
		return "WAITING", nil
	}
}

func fetchHits(ctx context.Context, client *httpclient.Client, baseURL, rid string) (string, error) {
	u := baseURL + "?CMD=Get&FORMAT_TYPE=Tabular&RID=" + url.QueryEscape(rid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", broker.New(broker.Internal, "building fetch request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return "", broker.New(broker.UpstreamError, "fetching BLAST hits: %v", err)
		}
		defer resp.Body.Close()
		return "", broker.New(httpclient.ClassifyStatus(resp.StatusCode), "fetching BLAST hits: status %d", resp.StatusCode)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", broker.New(broker.UpstreamError, "reading BLAST hits: %v", err)
	}
	return string(body), nil
}

type pingable struct {
	client  *httpclient.Client
	baseURL string
}

func (p *pingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?CMD=Info", nil)
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
