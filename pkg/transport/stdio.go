package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/jsonrpc"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/genobridge/genobridge/pkg/taskmanager"
)

// taskPollInterval is how often a deferred tools/call checks on a
// long-running task's progress while waiting for it to reach a terminal
// state. The Task Manager has no subscribe/await API, just Get, so
// polling is the simplest thing that matches its shape.
const taskPollInterval = 150 * time.Millisecond

// Selector narrows the tools/list response to an intent's best matches.
// Implemented by the Dynamic Selector; nil means "always list everything".
type Selector interface {
	Select(intent string, ctx map[string]any, topK int) []*registry.Descriptor
}

// Dispatcher is the subset of *dispatcher.Dispatcher the transport needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, toolName string, args map[string]any, origin dispatcher.Origin) (any, error)
}

// TaskSource is the subset of *taskmanager.Manager the transport needs to
// follow a long-running call through to its terminal state and to honour
// notifications/cancel.
type TaskSource interface {
	Get(id string) (*taskmanager.Task, bool)
	Cancel(id string) error
}

// Server frames JSON-RPC 2.0 over stdin/stdout per the MCP stdio transport.
// Stdout carries protocol frames exclusively; every diagnostic goes through
// log, which callers should have pointed at stderr.
type Server struct {
	registry   *registry.Registry
	dispatcher Dispatcher
	selector   Selector
	tasks      TaskSource
	log        *slog.Logger

	in  *bufio.Scanner
	out io.Writer

	outMu sync.Mutex
	wg    sync.WaitGroup
}

// NewServer builds a transport Server reading from in and writing framed
// responses to out. Pass os.Stdin/os.Stdout at the call site. tasks may
// be nil in configurations with no long-running tools; a long_running
// dispatch then fails the way Dispatch itself already reports a missing
// Task Manager.
func NewServer(reg *registry.Registry, disp Dispatcher, sel Selector, tasks TaskSource, log *slog.Logger, in io.Reader, out io.Writer) *Server {
	if log == nil {
		log = slog.Default()
	}
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	return &Server{
		registry:   reg,
		dispatcher: disp,
		selector:   sel,
		tasks:      tasks,
		log:        log,
		in:         scanner,
		out:        out,
	}
}

// ExitCode is returned by Run and maps to the process exit code: 0 clean
// shutdown (EOF on stdin), 1 unrecoverable internal error, 2 protocol
// misuse (malformed JSON on stdin).
type ExitCode int

const (
	ExitOK             ExitCode = 0
	ExitInternal       ExitCode = 1
	ExitProtocolMisuse ExitCode = 2
)

// Run reads requests until EOF or ctx is cancelled, writing one response
// per line to out. It never returns an error for well-formed protocol
// traffic, including tool calls that fail — those become JSON-RPC error
// responses, not Go errors.
func (s *Server) Run(ctx context.Context) ExitCode {
	for s.in.Scan() {
		select {
		case <-ctx.Done():
			return ExitOK
		default:
		}

		line := s.in.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonrpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Error("malformed request on stdin", "error", err)
			s.writeResponse(jsonrpc.NewErrorResponse(nil, jsonrpc.ParseError, "malformed JSON"))
			return ExitProtocolMisuse
		}

		s.handle(ctx, req)
	}

	s.wg.Wait()

	if err := s.in.Err(); err != nil {
		s.log.Error("reading stdin", "error", err)
		return ExitInternal
	}
	return ExitOK
}

func (s *Server) handle(ctx context.Context, req jsonrpc.Request) {
	isNotification := req.ID == nil

	switch req.Method {
	case "initialize":
		s.writeResponse(jsonrpc.NewSuccessResponse(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      serverInfo{Name: "genobridge", Version: "0.1.0"},
			Capabilities:    capabilities{Tools: &toolsCapability{}},
		}))
	case "notifications/initialized":
		// host acknowledging our capabilities; no reply expected or sent
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	case "notifications/cancel":
		s.handleCancel(req)
	default:
		if isNotification {
			s.log.Debug("ignoring unknown notification", "method", req.Method)
			return
		}
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (s *Server) handleToolsList(req jsonrpc.Request) {
	var params struct {
		Context struct {
			Intent string         `json:"intent"`
			TopK   int            `json:"topK"`
			State  map[string]any `json:"state"`
		} `json:"context"`
	}
	_ = json.Unmarshal(req.Params, &params)

	var descriptors []*registry.Descriptor
	if s.selector != nil && params.Context.Intent != "" {
		topK := params.Context.TopK
		if topK == 0 {
			topK = 5
		}
		descriptors = s.selector.Select(params.Context.Intent, params.Context.State, topK)
	} else {
		descriptors = s.registry.All()
	}

	tools := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.MCPInputSchema(),
		})
	}

	s.writeResponse(jsonrpc.NewSuccessResponse(req.ID, toolsListResult{Tools: tools}))
}

func (s *Server) handleToolsCall(ctx context.Context, req jsonrpc.Request) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidParams, "invalid tools/call params"))
		return
	}

	result, err := s.dispatcher.Dispatch(ctx, params.Name, params.Arguments, dispatcher.Origin{ClientID: params.ClientID})
	if err != nil {
		s.writeResponse(jsonrpc.NewErrorResponse(req.ID, broker.CodeForKind(broker.KindOf(err)), err.Error()))
		return
	}

	if queued, ok := result.(dispatcher.QueuedResult); ok {
		s.wg.Add(1)
		go s.awaitTask(ctx, req.ID, queued.TaskID)
		return
	}

	s.writeResult(req.ID, result)
}

func (s *Server) writeResult(id *json.RawMessage, result any) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		s.writeResponse(jsonrpc.NewErrorResponse(id, jsonrpc.InternalError, "marshaling result"))
		return
	}

	s.writeResponse(jsonrpc.NewSuccessResponse(id, toolCallResult{
		Content: []content{{Type: "text", Text: string(resultJSON)}},
	}))
}

// awaitTask holds a deferred tools/call open until taskID reaches a
// terminal state, emitting notifications/progress as it advances and
// finally writing the task's result (or terminal error) as the tools/call
// response — per §4.3 step 3, the queued acknowledgement is never the
// final reply.
func (s *Server) awaitTask(ctx context.Context, id *json.RawMessage, taskID string) {
	defer s.wg.Done()

	if s.tasks == nil {
		s.writeResponse(jsonrpc.NewErrorResponse(id, jsonrpc.InternalError, "no task manager configured for long-running tools"))
		return
	}

	ticker := time.NewTicker(taskPollInterval)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		task, ok := s.tasks.Get(taskID)
		if !ok {
			s.writeResponse(jsonrpc.NewErrorResponse(id, jsonrpc.InternalError, fmt.Sprintf("task %q vanished", taskID)))
			return
		}

		if task.Progress != lastProgress {
			lastProgress = task.Progress
			s.writeNotification("notifications/progress", progressParams{
				TaskID: task.ID, Progress: task.Progress, Message: task.Message,
			})
		}

		if !task.State.Terminal() {
			continue
		}
		s.deliverTerminalTask(id, task)
		return
	}
}

func (s *Server) deliverTerminalTask(id *json.RawMessage, task *taskmanager.Task) {
	if task.State == taskmanager.StateSucceeded {
		s.writeResult(id, task.Result)
		return
	}

	kind := broker.Kind(task.ErrorKind)
	message := task.ErrorMsg
	if kind == "" {
		switch task.State {
		case taskmanager.StateCancelled:
			kind = broker.Cancelled
			message = "task cancelled"
		case taskmanager.StateTimedOut:
			kind = broker.TimedOut
		default:
			kind = broker.Internal
		}
	}
	s.writeResponse(jsonrpc.NewErrorResponse(id, broker.CodeForKind(kind), message))
}

func (s *Server) handleCancel(req jsonrpc.Request) {
	var params cancelParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.TaskID == "" {
		s.log.Debug("malformed notifications/cancel", "error", err)
		return
	}
	if s.tasks == nil {
		return
	}
	if err := s.tasks.Cancel(params.TaskID); err != nil {
		s.log.Debug("cancelling task", "task", params.TaskID, "error", err)
	}
}

func (s *Server) writeResponse(resp jsonrpc.Response) {
	s.writeLine(resp)
}

func (s *Server) writeNotification(method string, params any) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		s.log.Error("marshaling notification params", "error", err)
		return
	}
	s.writeLine(jsonrpc.Request{JSONRPC: "2.0", Method: method, Params: paramsJSON})
}

func (s *Server) writeLine(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshaling frame", "error", err)
		return
	}
	data = append(data, '\n')

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		s.log.Error("writing frame to stdout", "error", err)
	}
}
