// Package ledger is the Clipboard/Action Ledger (§4.9): per-client
// clipboard, staged action queue and committed-action history backing
// the copy/cut/paste/delete/insert/replace family of tools.
//
// Actual base content lives in the connected genome browser, not here, so
// any operation that needs to know what bases are at a region (copy, cut,
// delete, replace) round-trips through the Client Bridge to read them
// before staging an Action. That round-trip uses two conventional,
// non-registry call names (callReadRegion, callApplyAction) the bridge
// forwards like any other Invoke — the browser side of this protocol is
// out of scope here, same as every other client-executed tool.
package ledger

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/google/uuid"
)

var sequenceAlphabet = regexp.MustCompile(`^[ATCGN]+$`)

func validateRegion(start, end int) error {
	if start > end {
		return broker.New(broker.InvalidArguments, "start (%d) must be <= end (%d)", start, end)
	}
	return nil
}

func validateSequence(sequence string) error {
	if !sequenceAlphabet.MatchString(sequence) {
		return broker.New(broker.InvalidArguments, "sequence must match [ATCGN]+, got %q", sequence)
	}
	return nil
}

// ActionType is the kind of edit an Action stages.
type ActionType string

const (
	ActionInsert  ActionType = "insert"
	ActionDelete  ActionType = "delete"
	ActionReplace ActionType = "replace"
)

// ActionStatus is where an Action sits in its lifecycle.
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusCommitted ActionStatus = "committed"
	StatusFailed    ActionStatus = "failed"
)

// Action is one staged or committed edit.
type Action struct {
	ID         string       `json:"id"`
	Type       ActionType   `json:"type"`
	Chromosome string       `json:"chromosome"`
	Start      int          `json:"start"`
	End        int          `json:"end"`
	Sequence   string       `json:"sequence,omitempty"`
	Removed    string       `json:"removed,omitempty"`
	Status     ActionStatus `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// ClipboardEntry is the content and source location of the last copy/cut.
type ClipboardEntry struct {
	Chromosome string `json:"chromosome"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Sequence   string `json:"sequence"`
}

// ExecuteResult reports which staged actions committed and which were
// marked failed by execute_actions.
type ExecuteResult struct {
	Committed []string `json:"committed"`
	Failed    []string `json:"failed"`
}

// ClientCaller forwards a call to a connected interactive client. The
// Client Bridge satisfies this structurally.
type ClientCaller interface {
	Invoke(ctx context.Context, clientID, toolName string, args map[string]any) (any, error)
}

const (
	callReadRegion  = "__read_sequence_region"
	callApplyAction = "__apply_action"
)

type clientState struct {
	clipboard *ClipboardEntry
	queue     []*Action
	history   []*Action
}

// Ledger holds per-client clipboard/queue/history state. One Ledger
// serves every connected client; state is keyed by client ID and guarded
// by a single mutex, matching the Task Manager's "mutex, not actor"
// convention.
type Ledger struct {
	clients ClientCaller

	mu     sync.Mutex
	states map[string]*clientState
}

// New builds a Ledger. clients may be nil in tests that never stage an
// action requiring a client round-trip; real operation always wires the
// Client Bridge in.
func New(clients ClientCaller) *Ledger {
	return &Ledger{clients: clients, states: make(map[string]*clientState)}
}

// state returns (creating if absent) the clientState for clientID. Callers
// must hold l.mu.
func (l *Ledger) state(clientID string) *clientState {
	s, ok := l.states[clientID]
	if !ok {
		s = &clientState{}
		l.states[clientID] = s
	}
	return s
}

func newAction(t ActionType, chromosome string, start, end int, sequence, removed string) *Action {
	return &Action{
		ID:         uuid.NewString(),
		Type:       t,
		Chromosome: chromosome,
		Start:      start,
		End:        end,
		Sequence:   sequence,
		Removed:    removed,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
}

func (l *Ledger) readRegion(ctx context.Context, clientID, chromosome string, start, end int) (string, error) {
	if l.clients == nil {
		return "", broker.New(broker.NotConfigured, "reading sequence content requires a connected client but no bridge is configured")
	}
	result, err := l.clients.Invoke(ctx, clientID, callReadRegion, map[string]any{
		"chromosome": chromosome, "start": start, "end": end,
	})
	if err != nil {
		return "", err
	}
	m, ok := result.(map[string]any)
	if !ok {
		return "", broker.New(broker.Internal, "client returned a malformed region read result")
	}
	seq, _ := m["sequence"].(string)
	return seq, nil
}

func actionArgs(a *Action) map[string]any {
	return map[string]any{
		"type": string(a.Type), "chromosome": a.Chromosome,
		"start": a.Start, "end": a.End, "sequence": a.Sequence,
	}
}

// Copy reads chromosome:[start,end) from the client and stores it as the
// clipboard entry. It does not stage an Action: copying never mutates.
func (l *Ledger) Copy(ctx context.Context, clientID, chromosome string, start, end int) (*ClipboardEntry, error) {
	if err := validateRegion(start, end); err != nil {
		return nil, err
	}
	seq, err := l.readRegion(ctx, clientID, chromosome, start, end)
	if err != nil {
		return nil, err
	}
	entry := &ClipboardEntry{Chromosome: chromosome, Start: start, End: end, Sequence: seq}

	l.mu.Lock()
	l.state(clientID).clipboard = entry
	l.mu.Unlock()
	return entry, nil
}

// Cut does what Copy does, plus stages a pending delete of the same
// region.
func (l *Ledger) Cut(ctx context.Context, clientID, chromosome string, start, end int) (*ClipboardEntry, error) {
	if err := validateRegion(start, end); err != nil {
		return nil, err
	}
	seq, err := l.readRegion(ctx, clientID, chromosome, start, end)
	if err != nil {
		return nil, err
	}
	entry := &ClipboardEntry{Chromosome: chromosome, Start: start, End: end, Sequence: seq}
	action := newAction(ActionDelete, chromosome, start, end, "", seq)

	l.mu.Lock()
	st := l.state(clientID)
	st.clipboard = entry
	st.queue = append(st.queue, action)
	l.mu.Unlock()
	return entry, nil
}

// Paste stages an insertion of the clipboard's content at position. Fails
// EmptyClipboard if nothing has been copied or cut yet.
func (l *Ledger) Paste(clientID, chromosome string, position int) (*Action, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(clientID)
	if st.clipboard == nil {
		return nil, broker.New(broker.EmptyClipboard, "clipboard is empty for client %q", clientID)
	}
	action := newAction(ActionInsert, chromosome, position, position, st.clipboard.Sequence, "")
	st.queue = append(st.queue, action)
	return action, nil
}

// Delete stages a deletion of chromosome:[start,end), recording the
// removed content so a later undo can restore it.
func (l *Ledger) Delete(ctx context.Context, clientID, chromosome string, start, end int) (*Action, error) {
	if err := validateRegion(start, end); err != nil {
		return nil, err
	}
	removed, err := l.readRegion(ctx, clientID, chromosome, start, end)
	if err != nil {
		return nil, err
	}
	action := newAction(ActionDelete, chromosome, start, end, "", removed)

	l.mu.Lock()
	l.state(clientID).queue = append(l.state(clientID).queue, action)
	l.mu.Unlock()
	return action, nil
}

// Insert stages an insertion of literal sequence at position.
func (l *Ledger) Insert(clientID, chromosome string, position int, sequence string) (*Action, error) {
	if err := validateSequence(sequence); err != nil {
		return nil, err
	}
	action := newAction(ActionInsert, chromosome, position, position, sequence, "")

	l.mu.Lock()
	l.state(clientID).queue = append(l.state(clientID).queue, action)
	l.mu.Unlock()
	return action, nil
}

// Replace stages a replacement of chromosome:[start,end) with sequence,
// recording the original content for undo.
func (l *Ledger) Replace(ctx context.Context, clientID, chromosome string, start, end int, sequence string) (*Action, error) {
	if err := validateRegion(start, end); err != nil {
		return nil, err
	}
	if err := validateSequence(sequence); err != nil {
		return nil, err
	}
	removed, err := l.readRegion(ctx, clientID, chromosome, start, end)
	if err != nil {
		return nil, err
	}
	action := newAction(ActionReplace, chromosome, start, end, sequence, removed)

	l.mu.Lock()
	l.state(clientID).queue = append(l.state(clientID).queue, action)
	l.mu.Unlock()
	return action, nil
}

// GetActionList returns the staged actions for clientID, optionally
// filtered to one status. An empty status returns everything still in the
// queue (cleared/committed-and-popped entries are gone, but committed
// entries stay in the queue until cleared).
func (l *Ledger) GetActionList(clientID string, status ActionStatus) []*Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[clientID]
	if !ok {
		return nil
	}
	if status == "" {
		out := make([]*Action, len(st.queue))
		copy(out, st.queue)
		return out
	}

	var out []*Action
	for _, a := range st.queue {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

// UpdateActionStatus applies an action_progress report from the client to
// the matching staged or committed Action. Unknown client or action IDs
// are ignored: progress for an action this Ledger never staged carries no
// information worth failing a call over.
func (l *Ledger) UpdateActionStatus(clientID, actionID string, status ActionStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[clientID]
	if !ok {
		return
	}
	for _, a := range st.queue {
		if a.ID == actionID {
			a.Status = status
			return
		}
	}
	for _, a := range st.history {
		if a.ID == actionID {
			a.Status = status
			return
		}
	}
}

// ClearActions removes queue entries matching status (or everything, if
// status is empty) and returns how many were removed. History is
// untouched: clearing the queue doesn't affect what undo can reach.
func (l *Ledger) ClearActions(clientID string, status ActionStatus) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[clientID]
	if !ok {
		return 0
	}
	if status == "" {
		n := len(st.queue)
		st.queue = nil
		return n
	}

	kept := make([]*Action, 0, len(st.queue))
	removed := 0
	for _, a := range st.queue {
		if a.Status == status {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	st.queue = kept
	return removed
}

// ExecuteActions commits every pending staged action to the client, in
// order. The first failure marks every action from that point on
// (including ones never attempted) as failed; actions already committed
// before the failure are not rolled back, per §4.9's explicit no-rollback
// decision.
func (l *Ledger) ExecuteActions(ctx context.Context, clientID string) (*ExecuteResult, error) {
	l.mu.Lock()
	st := l.state(clientID)
	pending := make([]*Action, 0, len(st.queue))
	for _, a := range st.queue {
		if a.Status == StatusPending {
			pending = append(pending, a)
		}
	}
	l.mu.Unlock()

	if len(pending) == 0 {
		return &ExecuteResult{}, nil
	}
	if l.clients == nil {
		return nil, broker.New(broker.NotConfigured, "executing actions requires a connected client but no bridge is configured")
	}

	result := &ExecuteResult{}
	failedEarly := false
	for _, a := range pending {
		if failedEarly {
			l.mu.Lock()
			a.Status = StatusFailed
			l.mu.Unlock()
			result.Failed = append(result.Failed, a.ID)
			continue
		}

		_, err := l.clients.Invoke(ctx, clientID, callApplyAction, actionArgs(a))

		l.mu.Lock()
		if err != nil {
			a.Status = StatusFailed
			failedEarly = true
			result.Failed = append(result.Failed, a.ID)
		} else {
			a.Status = StatusCommitted
			st.history = append(st.history, a)
			result.Committed = append(result.Committed, a.ID)
		}
		l.mu.Unlock()
	}

	return result, nil
}

// UndoLastAction re-issues the inverse of the most recently committed
// action: insert<->delete, replace<->replace-with-original-content. Fails
// UndoNotSupported when history is empty or the recorded action lacks the
// content an inverse needs (e.g. a delete committed before this field was
// tracked).
func (l *Ledger) UndoLastAction(ctx context.Context, clientID string) (*Action, error) {
	l.mu.Lock()
	st, ok := l.states[clientID]
	if !ok || len(st.history) == 0 {
		l.mu.Unlock()
		return nil, broker.New(broker.UndoNotSupported, "no committed action to undo for client %q", clientID)
	}
	last := st.history[len(st.history)-1]
	inverse, err := buildInverse(last)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if l.clients == nil {
		return nil, broker.New(broker.NotConfigured, "undo requires a connected client but no bridge is configured")
	}
	if _, err := l.clients.Invoke(ctx, clientID, callApplyAction, actionArgs(inverse)); err != nil {
		return nil, err
	}

	l.mu.Lock()
	st.history = st.history[:len(st.history)-1]
	l.mu.Unlock()
	return inverse, nil
}

func buildInverse(a *Action) (*Action, error) {
	switch a.Type {
	case ActionInsert:
		if a.Sequence == "" {
			return nil, broker.New(broker.UndoNotSupported, "insert action %q has no recorded content to remove", a.ID)
		}
		return newAction(ActionDelete, a.Chromosome, a.Start, a.Start+len(a.Sequence), "", a.Sequence), nil
	case ActionDelete:
		if a.Removed == "" {
			return nil, broker.New(broker.UndoNotSupported, "delete action %q has no recorded content to restore", a.ID)
		}
		return newAction(ActionInsert, a.Chromosome, a.Start, a.Start, a.Removed, ""), nil
	case ActionReplace:
		if a.Removed == "" {
			return nil, broker.New(broker.UndoNotSupported, "replace action %q has no recorded original content", a.ID)
		}
		return newAction(ActionReplace, a.Chromosome, a.Start, a.Start+len(a.Sequence), a.Removed, a.Sequence), nil
	default:
		return nil, broker.New(broker.UndoNotSupported, "unknown action type %q", a.Type)
	}
}
