// Package action wires the Clipboard/Action Ledger into the Tool
// Dispatcher as the ten action-category server-side handlers.
package action

import (
	"context"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/ledger"
)

// Register wires every action-ledger handler into d under its tool name.
func Register(d *dispatcher.Dispatcher, l *ledger.Ledger) {
	d.Register("copy_sequence", copySequence(l))
	d.Register("cut_sequence", cutSequence(l))
	d.Register("paste_sequence", pasteSequence(l))
	d.Register("delete_region", deleteRegion(l))
	d.Register("insert_sequence", insertSequence(l))
	d.Register("replace_region", replaceRegion(l))
	d.Register("get_action_list", getActionList(l))
	d.Register("execute_actions", executeActions(l))
	d.Register("clear_actions", clearActions(l))
	d.Register("undo_last_action", undoLastAction(l))
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", broker.New(broker.InvalidArguments, "%s must be a non-empty string", name)
	}
	return v, nil
}

func intArg(args map[string]any, name string) (int, error) {
	v, ok := args[name]
	if !ok {
		return 0, broker.New(broker.InvalidArguments, "%s is required", name)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	}
	return 0, broker.New(broker.InvalidArguments, "%s must be a number", name)
}

func requireClient(origin dispatcher.Origin) (string, error) {
	if origin.ClientID == "" {
		return "", broker.New(broker.NoClientAvailable, "no originating client for this action")
	}
	return origin.ClientID, nil
}

func copySequence(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		chromosome, err := stringArg(args, "chromosome")
		if err != nil {
			return nil, err
		}
		start, err := intArg(args, "start")
		if err != nil {
			return nil, err
		}
		end, err := intArg(args, "end")
		if err != nil {
			return nil, err
		}
		return l.Copy(ctx, clientID, chromosome, start, end)
	}
}

func cutSequence(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		chromosome, err := stringArg(args, "chromosome")
		if err != nil {
			return nil, err
		}
		start, err := intArg(args, "start")
		if err != nil {
			return nil, err
		}
		end, err := intArg(args, "end")
		if err != nil {
			return nil, err
		}
		return l.Cut(ctx, clientID, chromosome, start, end)
	}
}

func pasteSequence(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(_ context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		chromosome, err := stringArg(args, "chromosome")
		if err != nil {
			return nil, err
		}
		position, err := intArg(args, "position")
		if err != nil {
			return nil, err
		}
		return l.Paste(clientID, chromosome, position)
	}
}

func deleteRegion(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		chromosome, err := stringArg(args, "chromosome")
		if err != nil {
			return nil, err
		}
		start, err := intArg(args, "start")
		if err != nil {
			return nil, err
		}
		end, err := intArg(args, "end")
		if err != nil {
			return nil, err
		}
		return l.Delete(ctx, clientID, chromosome, start, end)
	}
}

func insertSequence(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(_ context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		chromosome, err := stringArg(args, "chromosome")
		if err != nil {
			return nil, err
		}
		position, err := intArg(args, "position")
		if err != nil {
			return nil, err
		}
		sequence, err := stringArg(args, "sequence")
		if err != nil {
			return nil, err
		}
		return l.Insert(clientID, chromosome, position, sequence)
	}
}

func replaceRegion(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		chromosome, err := stringArg(args, "chromosome")
		if err != nil {
			return nil, err
		}
		start, err := intArg(args, "start")
		if err != nil {
			return nil, err
		}
		end, err := intArg(args, "end")
		if err != nil {
			return nil, err
		}
		sequence, err := stringArg(args, "sequence")
		if err != nil {
			return nil, err
		}
		return l.Replace(ctx, clientID, chromosome, start, end, sequence)
	}
}

func getActionList(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(_ context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		status, _ := args["status"].(string)
		return map[string]any{"actions": l.GetActionList(clientID, ledger.ActionStatus(status))}, nil
	}
}

func executeActions(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(ctx context.Context, _ map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		return l.ExecuteActions(ctx, clientID)
	}
}

func clearActions(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(_ context.Context, args map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		status, _ := args["status"].(string)
		return map[string]any{"cleared": l.ClearActions(clientID, ledger.ActionStatus(status))}, nil
	}
}

func undoLastAction(l *ledger.Ledger) dispatcher.HandlerFunc {
	return func(ctx context.Context, _ map[string]any, origin dispatcher.Origin) (any, error) {
		clientID, err := requireClient(origin)
		if err != nil {
			return nil, err
		}
		return l.UndoLastAction(ctx, clientID)
	}
}
