// Package coordination exposes the Client Bridge's broadcast/roster
// operations and the Dynamic Selector's scoring as tool calls in their
// own right, so an MCP client can drive multi-client coordination and
// tool discovery the same way it drives any other tool.
package coordination

import (
	"context"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/selector"
)

// Broadcaster is the subset of the Client Bridge broadcast_event needs.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Roster is the subset of the Client Bridge get_connected_clients needs.
type Roster interface {
	ConnectedClientIDs() []string
	Capabilities(clientID string) []string
}

// Register wires broadcast_event, get_connected_clients and
// select_relevant_tools into d.
func Register(d *dispatcher.Dispatcher, bridge interface {
	Broadcaster
	Roster
}, sel *selector.Selector) {
	d.Register("broadcast_event", broadcastHandler(bridge))
	d.Register("get_connected_clients", connectedClientsHandler(bridge))
	d.Register("select_relevant_tools", selectToolsHandler(sel))
}

func broadcastHandler(b Broadcaster) dispatcher.HandlerFunc {
	return func(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		event, ok := args["event"].(string)
		if !ok || event == "" {
			return nil, broker.New(broker.InvalidArguments, "event must be a non-empty string")
		}
		payload := args["payload"]
		b.Broadcast(event, payload)
		return map[string]any{"success": true}, nil
	}
}

func connectedClientsHandler(r Roster) dispatcher.HandlerFunc {
	return func(_ context.Context, _ map[string]any, _ dispatcher.Origin) (any, error) {
		ids := r.ConnectedClientIDs()
		clients := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			clients = append(clients, map[string]any{
				"clientId":     id,
				"capabilities": r.Capabilities(id),
			})
		}
		return map[string]any{"success": true, "clients": clients}, nil
	}
}

func selectToolsHandler(sel *selector.Selector) dispatcher.HandlerFunc {
	return func(_ context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		intent, ok := args["intent"].(string)
		if !ok || intent == "" {
			return nil, broker.New(broker.InvalidArguments, "intent must be a non-empty string")
		}
		topK := 5
		if v, ok := args["topK"].(float64); ok && v > 0 {
			topK = int(v)
		}

		matches := sel.Select(intent, nil, topK)
		tools := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			tools = append(tools, map[string]any{
				"name":        m.Name,
				"description": m.Description,
				"category":    m.Category,
			})
		}
		return map[string]any{"success": true, "tools": tools}, nil
	}
}
