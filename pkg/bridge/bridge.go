// Package bridge owns the set of connected interactive clients (genome
// browsers and similar applications) and multiplexes tool calls over their
// WebSocket connections.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the bridge depends on, so tests can
// substitute an in-memory fake instead of opening a real socket.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// connection tracks one client's socket plus the state §3 assigns to a
// ClientConnection. The read-pump goroutine is the only writer of
// LastState and Capabilities; the write-pump goroutine is the only writer
// to conn. Both rules come from the single-writer-per-connection model.
type connection struct {
	clientID     string
	conn         Conn
	capabilities map[string]bool
	outbox       chan any

	mu        sync.RWMutex
	lastState json.RawMessage
}

// Bridge holds every connection keyed by client ID and the in-flight
// call-id -> waiter map used to correlate invoke() with its reply.
type Bridge struct {
	log *slog.Logger

	mu          sync.RWMutex
	connections map[string]*connection

	nextCallID atomic.Int64

	pendingMu       sync.Mutex
	pending         map[int64]chan pendingResult
	pendingByClient map[string]map[int64]struct{}

	// actionProgress forwards an action_progress client message to the
	// Action Ledger. Set once at startup, before any connection is
	// registered; nil is a valid "no ledger wired" configuration.
	actionProgress func(clientID, actionID, status string)
}

type pendingResult struct {
	data any
	err  error
}

// New returns an empty Bridge ready to accept connections.
func New(log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		log:             log,
		connections:     make(map[string]*connection),
		pending:         make(map[int64]chan pendingResult),
		pendingByClient: make(map[string]map[int64]struct{}),
	}
}

// SetActionProgressHandler wires fn to receive every action_progress
// message a client sends. Call during startup, before Register is ever
// called.
func (b *Bridge) SetActionProgressHandler(fn func(clientID, actionID, status string)) {
	b.actionProgress = fn
}

// Register adopts an already-upgraded connection under clientID and starts
// its read-pump and write-pump. Call once per WebSocket OPEN.
func (b *Bridge) Register(clientID string, conn Conn) {
	c := &connection{
		clientID:     clientID,
		conn:         conn,
		capabilities: make(map[string]bool),
		outbox:       make(chan any, 64),
	}

	b.mu.Lock()
	b.connections[clientID] = c
	b.mu.Unlock()

	go b.writePump(c)
	go b.readPump(c)
}

// Unregister tears down a connection on WebSocket CLOSE, failing any
// in-flight invoke() calls targeting it with ClientDisconnected.
func (b *Bridge) Unregister(clientID string) {
	b.mu.Lock()
	c, ok := b.connections[clientID]
	delete(b.connections, clientID)
	b.mu.Unlock()

	if !ok {
		return
	}

	b.pendingMu.Lock()
	for callID := range b.pendingByClient[clientID] {
		if waiter, ok := b.pending[callID]; ok {
			waiter <- pendingResult{err: broker.New(broker.ClientDisconnected, "client %q disconnected", clientID)}
			delete(b.pending, callID)
		}
	}
	delete(b.pendingByClient, clientID)
	b.pendingMu.Unlock()

	close(c.outbox)
	_ = c.conn.Close()
}

// ConnectedClientIDs lists every currently-registered client, sorted for
// deterministic diagnostics.
func (b *Bridge) ConnectedClientIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.connections))
	for id := range b.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Capabilities lists the capability strings clientID announced in its
// "hello" message, sorted. Returns an empty slice for an unknown or
// not-yet-introduced client.
func (b *Bridge) Capabilities(clientID string) []string {
	b.mu.RLock()
	c, ok := b.connections[clientID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	caps := make([]string, 0, len(c.capabilities))
	for cap := range c.capabilities {
		caps = append(caps, cap)
	}
	sort.Strings(caps)
	return caps
}

type wireMessage struct {
	Type     string          `json:"type"`
	CallID   int64           `json:"call_id,omitempty"`
	Tool     string          `json:"tool,omitempty"`
	Args     map[string]any  `json:"args,omitempty"`
	OK       bool            `json:"ok,omitempty"`
	Data     any             `json:"data,omitempty"`
	Error    *wireError      `json:"error,omitempty"`
	Event    string          `json:"event,omitempty"`
	Payload  any             `json:"payload,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	ActionID string          `json:"action_id,omitempty"`
	Status   string          `json:"status,omitempty"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Invoke sends a tool_call frame to clientID and blocks until the matching
// tool_result arrives, ctx is cancelled, or timeout elapses. The pending
// entry is always removed before return, on every exit path.
func (b *Bridge) Invoke(ctx context.Context, clientID, toolName string, args map[string]any) (any, error) {
	b.mu.RLock()
	c, ok := b.connections[clientID]
	b.mu.RUnlock()
	if !ok {
		return nil, broker.New(broker.ClientDisconnected, "client %q is not connected", clientID)
	}

	callID := b.nextCallID.Add(1)
	waiter := make(chan pendingResult, 1)

	b.pendingMu.Lock()
	b.pending[callID] = waiter
	if b.pendingByClient[clientID] == nil {
		b.pendingByClient[clientID] = make(map[int64]struct{})
	}
	b.pendingByClient[clientID][callID] = struct{}{}
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, callID)
		delete(b.pendingByClient[clientID], callID)
		if len(b.pendingByClient[clientID]) == 0 {
			delete(b.pendingByClient, clientID)
		}
		b.pendingMu.Unlock()
	}()

	select {
	case c.outbox <- wireMessage{Type: "tool_call", CallID: callID, Tool: toolName, Args: args}:
	default:
		return nil, broker.New(broker.ClientDisconnected, "client %q outbox is full", clientID)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, broker.New(broker.ClientTimeout, "call to %q timed out", clientID)
		}
		return nil, broker.New(broker.Cancelled, "call to %q cancelled", clientID)
	case res := <-waiter:
		return res.data, res.err
	}
}

// Broadcast fire-and-forgets an event to every connected client. Clients
// whose outbox is full are skipped rather than blocking the broadcaster.
func (b *Bridge) Broadcast(event string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, c := range b.connections {
		select {
		case c.outbox <- wireMessage{Type: "event", Event: event, Payload: payload}:
		default:
			b.log.Warn("dropping broadcast, outbox full", "client", c.clientID, "event", event)
		}
	}
}

// LastState returns the most recent state_update snapshot reported by
// clientID, or nil if none has arrived yet.
func (b *Bridge) LastState(clientID string) json.RawMessage {
	b.mu.RLock()
	c, ok := b.connections[clientID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastState
}

func (b *Bridge) writePump(c *connection) {
	for msg := range c.outbox {
		if err := c.conn.WriteJSON(msg); err != nil {
			b.log.Warn("write to client failed", "client", c.clientID, "error", err)
			return
		}
	}
}

func (b *Bridge) readPump(c *connection) {
	defer b.Unregister(c.clientID)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Warn("malformed client message", "client", c.clientID, "error", err)
			continue
		}

		switch msg.Type {
		case "hello":
			var hello struct {
				Capabilities []string `json:"capabilities"`
			}
			_ = json.Unmarshal(data, &hello)
			c.mu.Lock()
			for _, capability := range hello.Capabilities {
				c.capabilities[capability] = true
			}
			c.mu.Unlock()
		case "state_update":
			c.mu.Lock()
			c.lastState = msg.Snapshot
			c.mu.Unlock()
		case "tool_result":
			b.resolveCall(msg)
		case "action_progress":
			if b.actionProgress != nil {
				b.actionProgress(c.clientID, msg.ActionID, msg.Status)
			}
		default:
			b.log.Debug("unrecognized message type", "client", c.clientID, "type", msg.Type)
		}
	}
}

func (b *Bridge) resolveCall(msg wireMessage) {
	b.pendingMu.Lock()
	waiter, ok := b.pending[msg.CallID]
	b.pendingMu.Unlock()
	if !ok {
		return
	}

	if msg.OK {
		waiter <- pendingResult{data: msg.Data}
		return
	}

	kind := broker.Internal
	message := "client reported failure"
	if msg.Error != nil {
		kind = broker.Kind(msg.Error.Kind)
		message = msg.Error.Message
	}
	waiter <- pendingResult{err: broker.New(kind, "%s", message)}
}

var _ Conn = (*websocket.Conn)(nil)
