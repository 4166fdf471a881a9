package interpro

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/genobridge/genobridge/pkg/taskmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entryDescriptorYAML = `
name: get_interpro_entry
description: Fetch a single InterPro entry by accession.
category: database
execution_side: server
priority: 45
schema:
  properties:
    accession: { type: string }
  required: [accession]
`

func setup(t *testing.T, entryHandlerFn, scanHandlerFn http.HandlerFunc) (*dispatcher.Dispatcher, map[string]taskmanager.HandlerFunc, *health.Monitor) {
	t.Helper()
	entrySrv := httptest.NewServer(entryHandlerFn)
	t.Cleanup(entrySrv.Close)
	scanSrv := httptest.NewServer(scanHandlerFn)
	t.Cleanup(scanSrv.Close)

	reg := registry.New()
	fsys := fstest.MapFS{"tools/entry.yaml": &fstest.MapFile{Data: []byte(entryDescriptorYAML)}}
	require.NoError(t, reg.Load(fsys, "tools", ""))

	d := dispatcher.New(reg, nil, nil, nil)
	mon := health.New(nil)
	longRunning := map[string]taskmanager.HandlerFunc{}

	Register(d, longRunning, httpclient.New(httpclient.Config{}), mon, scanSrv.URL, entrySrv.URL, "test@example.com")
	return d, longRunning, mon
}

func TestRegister_WiresEntryLookupThroughDispatcher(t *testing.T) {
	d, _, _ := setup(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/IPR000001", r.URL.Path)
			w.Write([]byte(`{"metadata": {"accession": "IPR000001"}}`))
		},
		func(w http.ResponseWriter, r *http.Request) {},
	)

	result, err := d.Dispatch(context.Background(), "get_interpro_entry", map[string]any{"accession": "IPR000001"}, dispatcher.Origin{})
	require.NoError(t, err)
	assert.True(t, result.(map[string]any)["success"].(bool))
}

func TestGetInterproEntry_MissingAccessionIsInvalidArguments(t *testing.T) {
	d, _, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {}, func(w http.ResponseWriter, r *http.Request) {})

	_, err := d.Dispatch(context.Background(), "get_interpro_entry", map[string]any{}, dispatcher.Origin{})
	require.Error(t, err)
	assert.Equal(t, broker.InvalidArguments, broker.KindOf(err))
}

func TestRegister_InstallsAnalyzeDomainsAsLongRunningHandler(t *testing.T) {
	_, longRunning, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {}, func(w http.ResponseWriter, r *http.Request) {})

	_, ok := longRunning["analyze_interpro_domains"]
	assert.True(t, ok)
}

func TestRegister_AddsInterproHealthFamily(t *testing.T) {
	_, _, mon := setup(t, func(w http.ResponseWriter, r *http.Request) {}, func(w http.ResponseWriter, r *http.Request) {})

	_, ok := mon.Record(familyName)
	assert.True(t, ok)
}

func TestScanHandler_MissingSequenceIsInvalidArguments(t *testing.T) {
	_, longRunning, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {}, func(w http.ResponseWriter, r *http.Request) {})

	handler := longRunning["analyze_interpro_domains"]
	_, err := handler(context.Background(), map[string]any{}, func(int, string) bool { return true })
	require.Error(t, err)
	assert.Equal(t, broker.InvalidArguments, broker.KindOf(err))
}

func TestScanHandler_SubmitsPollsAndFetchesResult(t *testing.T) {
	original := pollInterval
	pollInterval = time.Millisecond
	t.Cleanup(func() { pollInterval = original })

	calls := 0
	_, longRunning, _ := setup(t,
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/run":
				w.Write([]byte("job-123"))
			case r.URL.Path == "/status/job-123":
				calls++
				if calls < 2 {
					w.Write([]byte("RUNNING"))
				} else {
					w.Write([]byte("FINISHED"))
				}
			case r.URL.Path == "/result/job-123/json":
				w.Write([]byte(`{"matches": []}`))
			}
		},
	)

	handler := longRunning["analyze_interpro_domains"]
	reports := []int{}
	report := func(pct int, msg string) bool {
		reports = append(reports, pct)
		return true
	}

	result, err := handler(context.Background(), map[string]any{"sequence": "MKT"}, report)
	require.NoError(t, err)
	out := result.(map[string]any)
	assert.Equal(t, "job-123", out["jobId"])
	assert.Contains(t, out["result"], "matches")
	assert.NotEmpty(t, reports)
}

func TestScanHandler_JobFailureMapsToUpstreamError(t *testing.T) {
	_, longRunning, _ := setup(t,
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/run":
				w.Write([]byte("job-err"))
			case r.URL.Path == "/status/job-err":
				w.Write([]byte("FAILURE"))
			}
		},
	)

	handler := longRunning["analyze_interpro_domains"]
	_, err := handler(context.Background(), map[string]any{"sequence": "MKT"}, func(int, string) bool { return true })
	require.Error(t, err)
	assert.Equal(t, broker.UpstreamError, broker.KindOf(err))
}

func TestScanHandler_ReportFalseCancelsPolling(t *testing.T) {
	_, longRunning, _ := setup(t,
		func(w http.ResponseWriter, r *http.Request) {},
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == "/run" {
				w.Write([]byte("job-cancel"))
			}
		},
	)

	handler := longRunning["analyze_interpro_domains"]
	_, err := handler(context.Background(), map[string]any{"sequence": "MKT"}, func(int, string) bool { return false })
	require.Error(t, err)
	assert.Equal(t, broker.Cancelled, broker.KindOf(err))
}
