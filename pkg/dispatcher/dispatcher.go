// Package dispatcher routes a validated tool call to its server-side
// handler, to the Task Manager for long-running work, or to a connected
// client via the bridge.
package dispatcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/genobridge/genobridge/pkg/tracing"
	"github.com/genobridge/genobridge/pkg/validator"
)

// clientCallTimeout bounds every client-side call per §5: a browser that
// never replies must not hang a tools/call forever.
const clientCallTimeout = 60 * time.Second

// HandlerFunc is a server-side tool implementation. It receives the
// validated, default-filled argument map and the call's Origin (for
// handler families, like the action ledger, that keep per-client state)
// and returns a JSON-serializable result or a *broker.Error.
type HandlerFunc func(ctx context.Context, args map[string]any, origin Origin) (any, error)

// TaskSubmitter enqueues long-running work. Implemented by the Task
// Manager; kept as an interface here so dispatcher has no import-time
// dependency on that package's concrete type.
type TaskSubmitter interface {
	Submit(ctx context.Context, toolName string, args map[string]any, origin string) (taskID string, err error)
}

// ClientCaller forwards a tool call to a connected interactive client.
// Implemented by the Client Bridge.
type ClientCaller interface {
	Invoke(ctx context.Context, clientID, toolName string, args map[string]any) (any, error)
	ConnectedClientIDs() []string
}

// PostHandler runs a best-effort side-call after a successful server-side
// completion. Its error is logged, never surfaced to the caller.
type PostHandler func(ctx context.Context, originClientID, toolName string, result any) error

// Dispatcher wires the Registry, Validator, Task Manager and Client Bridge
// together into the single dispatch(tool_name, args, origin) entrypoint.
type Dispatcher struct {
	registry *registry.Registry
	tasks    TaskSubmitter
	clients  ClientCaller
	log      *slog.Logger

	handlers     map[string]HandlerFunc
	postHandlers map[string]PostHandler
}

// New builds a Dispatcher. tasks and clients may be nil in configurations
// that have no long-running tools or no interactive clients respectively;
// calls that need the missing component then fail NotConfigured.
func New(reg *registry.Registry, tasks TaskSubmitter, clients ClientCaller, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry:     reg,
		tasks:        tasks,
		clients:      clients,
		log:          log,
		handlers:     make(map[string]HandlerFunc),
		postHandlers: make(map[string]PostHandler),
	}
}

// Register adds a server-side handler for toolName. Call during startup,
// before the first Dispatch; the map is never written to concurrently with
// reads.
func (d *Dispatcher) Register(toolName string, fn HandlerFunc) {
	d.handlers[toolName] = fn
}

// RegisterPostHandler adds a side-call that runs after toolName completes
// successfully server-side.
func (d *Dispatcher) RegisterPostHandler(toolName string, fn PostHandler) {
	d.postHandlers[toolName] = fn
}

// Origin identifies the caller of a Dispatch, so client-side calls know
// which connection to return to and explicit clientId overrides can be
// distinguished from it.
type Origin struct {
	ClientID string
}

// QueuedResult is what Dispatch returns for a long_running tool: the MCP
// reply is deferred until the caller observes the task reach a terminal
// state (see §4.3 step 3), so this is never itself the final tools/call
// result.
type QueuedResult struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// Dispatch is the Tool Dispatcher's single entrypoint: look up the
// descriptor, validate arguments, then route to a Task, a server-side
// handler, or a client.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, rawArgs map[string]any, origin Origin) (any, error) {
	ctx, span := tracing.StartDispatch(ctx, toolName)
	var err error
	defer func() { tracing.End(span, err) }()

	desc, getErr := d.registry.Get(toolName)
	if getErr != nil {
		err = broker.New(broker.ToolNotFound, "%s", getErr.Error())
		return nil, err
	}

	args, valErr := validator.Validate(desc, rawArgs)
	if valErr != nil {
		err = valErr
		return nil, err
	}

	if desc.LongRunning {
		if d.tasks == nil {
			err = broker.New(broker.NotConfigured, "tool %q is long-running but no task manager is configured", toolName)
			return nil, err
		}
		taskID, subErr := d.tasks.Submit(ctx, toolName, args, origin.ClientID)
		if subErr != nil {
			err = subErr
			return nil, err
		}
		return QueuedResult{TaskID: taskID, Status: "queued"}, nil
	}

	var result any
	if desc.ExecutionSide == registry.ExecutionServer {
		result, err = d.dispatchServer(ctx, toolName, args, origin)
	} else {
		result, err = d.dispatchClient(ctx, toolName, args, origin)
	}
	return result, err
}

func (d *Dispatcher) dispatchServer(ctx context.Context, toolName string, args map[string]any, origin Origin) (any, error) {
	handler, ok := d.handlers[toolName]
	if !ok {
		return nil, broker.New(broker.Internal, "no server-side handler registered for %q", toolName)
	}

	result, err := handler(ctx, args, origin)
	if err != nil {
		return nil, err
	}

	if post, ok := d.postHandlers[toolName]; ok {
		if perr := post(ctx, origin.ClientID, toolName, result); perr != nil {
			d.log.Warn("post-handler failed", "tool", toolName, "error", perr)
		}
	}

	return result, nil
}

func (d *Dispatcher) dispatchClient(ctx context.Context, toolName string, args map[string]any, origin Origin) (any, error) {
	if d.clients == nil {
		return nil, broker.New(broker.NotConfigured, "tool %q requires a connected client but no bridge is configured", toolName)
	}

	target, err := d.selectClient(args, origin)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, clientCallTimeout)
	defer cancel()
	return d.clients.Invoke(ctx, target, toolName, args)
}

// selectClient implements the §4.3 target-selection policy: an explicit
// clientId argument wins, then a lone connected client, else
// NoClientAvailable naming who is connected.
func (d *Dispatcher) selectClient(args map[string]any, origin Origin) (string, error) {
	if explicit, ok := args["clientId"].(string); ok && explicit != "" {
		return explicit, nil
	}

	ids := d.clients.ConnectedClientIDs()
	if len(ids) == 1 {
		return ids[0], nil
	}

	sort.Strings(ids)
	return "", broker.New(broker.NoClientAvailable, "no target client: %d connected (%v)", len(ids), ids).
		WithDetails(map[string]any{"connectedClients": ids})
}
