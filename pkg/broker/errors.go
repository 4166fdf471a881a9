// Package broker defines the error taxonomy shared by every component of
// the tool-dispatch broker, and the mapping from that taxonomy onto
// JSON-RPC 2.0 error codes.
package broker

import (
	"errors"
	"fmt"
)

// Kind identifies the semantic category of a failed Call. Kinds are
// stable and ordered: ordering determines the JSON-RPC error code via
// CodeForKind, so existing entries must never be reordered or removed.
type Kind string

const (
	ToolNotFound        Kind = "ToolNotFound"
	InvalidArguments    Kind = "InvalidArguments"
	NoClientAvailable   Kind = "NoClientAvailable"
	ClientDisconnected  Kind = "ClientDisconnected"
	ClientTimeout       Kind = "ClientTimeout"
	UpstreamError       Kind = "UpstreamError"
	UpstreamRateLimited Kind = "UpstreamRateLimited"
	NotConfigured       Kind = "NotConfigured"
	Cancelled           Kind = "Cancelled"
	TimedOut            Kind = "TimedOut"
	QueueFull           Kind = "QueueFull"
	EmptyClipboard      Kind = "EmptyClipboard"
	UndoNotSupported    Kind = "UndoNotSupported"
	Interrupted         Kind = "Interrupted"
	Internal            Kind = "Internal"
)

// kindOrder fixes the index used by CodeForKind. Index, not iota, so the
// mapping survives reshuffled const blocks.
var kindOrder = []Kind{
	ToolNotFound, InvalidArguments, NoClientAvailable, ClientDisconnected,
	ClientTimeout, UpstreamError, UpstreamRateLimited, NotConfigured,
	Cancelled, TimedOut, QueueFull, EmptyClipboard, UndoNotSupported,
	Interrupted, Internal,
}

// baseErrorCode is the JSON-RPC error code of the first entry in
// kindOrder; subsequent kinds occupy baseErrorCode-1, baseErrorCode-2, ...
// per §7: "code = -32000 - <kind-index>".
const baseErrorCode = -32000

// CodeForKind returns the stable JSON-RPC error code for a Kind. Unknown
// kinds map to the Internal code.
func CodeForKind(k Kind) int {
	for i, kk := range kindOrder {
		if kk == k {
			return baseErrorCode - i
		}
	}
	return CodeForKind(Internal)
}

// Retryable reports whether the Task Manager may retry a Call that failed
// with this kind.
func (k Kind) Retryable() bool {
	return k == UpstreamError || k == UpstreamRateLimited
}

// Error is the structured failure carried by a terminal Call. Handlers
// build one of these instead of returning an opaque error; the Dispatcher
// never sees a raw error cross its boundary.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an *Error for the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured details to an existing error, returning
// a new value (the receiver is not mutated).
func (e *Error) WithDetails(details any) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Details: details}
}

// As reports whether err (or something it wraps) is a *broker.Error, and
// if so sets *target to it. Thin wrapper over errors.As for call sites
// that only care about the Kind.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error,
// otherwise returns Internal.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return Internal
}
