package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/jsonrpc"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/genobridge/genobridge/pkg/taskmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gcYAML = `
name: compute_gc
description: gc content
category: sequence
execution_side: server
priority: 10
schema:
  properties:
    sequence: { type: string }
  required: [sequence]
`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	fsys := fstest.MapFS{"tools/a.yaml": &fstest.MapFile{Data: []byte(gcYAML)}}
	r := registry.New()
	require.NoError(t, r.Load(fsys, "tools", ""))
	return r
}

type fakeDispatcher struct {
	result any
	err    error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, toolName string, args map[string]any, origin dispatcher.Origin) (any, error) {
	return f.result, f.err
}

// fakeTasks is a minimal, concurrency-safe TaskSource a test can mutate
// from a background goroutine to simulate a task's progress.
type fakeTasks struct {
	mu        sync.Mutex
	tasks     map[string]*taskmanager.Task
	cancelled []string
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[string]*taskmanager.Task)}
}

func (f *fakeTasks) put(t *taskmanager.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
}

func (f *fakeTasks) Get(id string) (*taskmanager.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (f *fakeTasks) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	if t, ok := f.tasks[id]; ok {
		t.State = taskmanager.StateCancelled
		t.ErrorKind = string(broker.Cancelled)
		t.ErrorMsg = "cancelled by client"
	}
	return nil
}

func rawLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func runLines(t *testing.T, srv *Server) []jsonrpc.Response {
	t.Helper()
	ec := srv.Run(context.Background())
	assert.Equal(t, ExitOK, ec)

	out := srv.out.(*bytes.Buffer)
	var responses []jsonrpc.Response
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp jsonrpc.Response
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func newServerWithInput(reg *registry.Registry, disp Dispatcher, input string) *Server {
	return newServerWithTasks(reg, disp, nil, input)
}

func newServerWithTasks(reg *registry.Registry, disp Dispatcher, tasks TaskSource, input string) *Server {
	out := &bytes.Buffer{}
	return NewServer(reg, disp, nil, tasks, nil, strings.NewReader(input), out)
}

func TestRun_Initialize(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n"
	srv := newServerWithInput(testRegistry(t), &fakeDispatcher{}, input)

	responses := runLines(t, srv)
	require.Len(t, responses, 1)
	assert.Nil(t, responses[0].Error)

	var result initializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	assert.Equal(t, protocolVersion, result.ProtocolVersion)
}

func TestRun_ToolsList(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"
	srv := newServerWithInput(testRegistry(t), &fakeDispatcher{}, input)

	responses := runLines(t, srv)
	require.Len(t, responses, 1)

	var result toolsListResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "compute_gc", result.Tools[0].Name)
}

func TestRun_ToolsCallSuccess(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"compute_gc","arguments":{"sequence":"ATCGATCG"}}}` + "\n"
	srv := newServerWithInput(testRegistry(t), &fakeDispatcher{result: map[string]any{"gcContent": 50}}, input)

	responses := runLines(t, srv)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	var result toolCallResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "gcContent")
}

func TestRun_ToolsCallError(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope","arguments":{}}}` + "\n"
	srv := newServerWithInput(testRegistry(t), &fakeDispatcher{err: broker.New(broker.ToolNotFound, "nope")}, input)

	responses := runLines(t, srv)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, broker.CodeForKind(broker.ToolNotFound), responses[0].Error.Code)
}

func TestRun_UnknownMethodIsMethodNotFound(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"bogus"}` + "\n"
	srv := newServerWithInput(testRegistry(t), &fakeDispatcher{}, input)

	responses := runLines(t, srv)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, jsonrpc.MethodNotFound, responses[0].Error.Code)
}

func TestRun_MalformedJSONExitsProtocolMisuse(t *testing.T) {
	input := `not json` + "\n"
	srv := newServerWithInput(testRegistry(t), &fakeDispatcher{}, input)
	ec := srv.Run(context.Background())
	assert.Equal(t, ExitProtocolMisuse, ec)
}

func TestRun_LongRunningCallDefersFinalResponseUntilTerminal(t *testing.T) {
	tasks := newFakeTasks()
	tasks.put(&taskmanager.Task{ID: "task-1", State: taskmanager.StateRunning, Progress: 0})

	go func() {
		time.Sleep(2 * taskPollInterval)
		tasks.put(&taskmanager.Task{ID: "task-1", State: taskmanager.StateRunning, Progress: 40})
		time.Sleep(2 * taskPollInterval)
		tasks.put(&taskmanager.Task{
			ID: "task-1", State: taskmanager.StateSucceeded, Progress: 100,
			Result: map[string]any{"success": true, "domains": []string{"PF00001"}},
		})
	}()

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"analyze_interpro_domains","arguments":{}}}` + "\n"
	disp := &fakeDispatcher{result: dispatcher.QueuedResult{TaskID: "task-1", Status: "queued"}}
	srv := newServerWithTasks(testRegistry(t), disp, tasks, input)

	ec := srv.Run(context.Background())
	assert.Equal(t, ExitOK, ec)

	lines := rawLines(srv.out.(*bytes.Buffer).String())
	require.NotEmpty(t, lines)

	var sawProgress bool
	var final jsonrpc.Response
	var sawFinal bool
	for _, line := range lines {
		var frame struct {
			Method string `json:"method"`
		}
		_ = json.Unmarshal([]byte(line), &frame)
		if frame.Method == "notifications/progress" {
			sawProgress = true
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(line), &final))
		sawFinal = true
	}

	assert.True(t, sawProgress, "expected at least one notifications/progress frame")
	require.True(t, sawFinal, "expected a final tools/call response")
	require.Nil(t, final.Error)

	var result toolCallResult
	require.NoError(t, json.Unmarshal(final.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, `"success":true`)
}

func TestRun_NotificationsCancelDrivesTaskToCancelled(t *testing.T) {
	tasks := newFakeTasks()
	tasks.put(&taskmanager.Task{ID: "task-1", State: taskmanager.StateRunning, Progress: 0})

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"analyze_interpro_domains","arguments":{}}}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/cancel","params":{"task_id":"task-1"}}` + "\n"
	disp := &fakeDispatcher{result: dispatcher.QueuedResult{TaskID: "task-1", Status: "queued"}}
	srv := newServerWithTasks(testRegistry(t), disp, tasks, input)

	ec := srv.Run(context.Background())
	assert.Equal(t, ExitOK, ec)

	var final jsonrpc.Response
	var sawFinal bool
	for _, line := range rawLines(srv.out.(*bytes.Buffer).String()) {
		var frame struct {
			Method string `json:"method"`
		}
		_ = json.Unmarshal([]byte(line), &frame)
		if frame.Method != "" {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(line), &final))
		sawFinal = true
	}

	require.True(t, sawFinal, "expected a final tools/call response")
	require.NotNil(t, final.Error)
	assert.Equal(t, broker.CodeForKind(broker.Cancelled), final.Error.Code)
	assert.Contains(t, tasks.cancelled, "task-1")
}

func TestRun_NotificationGetsNoResponse(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"
	srv := newServerWithInput(testRegistry(t), &fakeDispatcher{}, input)

	ec := srv.Run(context.Background())
	assert.Equal(t, ExitOK, ec)
	assert.Empty(t, srv.out.(*bytes.Buffer).String())
}
