package jsonrpc2

import (
	"context"
	"fmt"
)

// Handler receives what the peer sends on its own initiative. Both methods
// are called from the read loop and must not block it for long; answer calls
// from another goroutine when the work is slow.
type Handler interface {
	// HandleCall receives a call. The handler is responsible for answering
	// it, now or later, with call.Reply or call.Fail.
	HandleCall(ctx context.Context, call *IncomingCall)
	// HandleEvent receives an event. Events are never answered.
	HandleEvent(ctx context.Context, event *Event)
}

var _ Handler = HandlerFuncs{}

// HandlerFuncs adapts functions to a Handler. A nil Call answers every call
// with a method-not-found error, a nil Event ignores events.
type HandlerFuncs struct {
	Call  func(ctx context.Context, call *IncomingCall)
	Event func(ctx context.Context, event *Event)
}

func (h HandlerFuncs) HandleCall(ctx context.Context, call *IncomingCall) {
	if h.Call != nil {
		h.Call(ctx, call)
		return
	}
	if err := call.Fail(methodNotFound(call.Method), nil); err != nil {
		logger.Printf("Failed to reject call %s: %s", call.ID, err)
	}
}

func (h HandlerFuncs) HandleEvent(ctx context.Context, event *Event) {
	if h.Event != nil {
		h.Event(ctx, event)
		return
	}
	logger.Printf("Ignoring event: %s", event.Name)
}

func methodNotFound(method string) *ErrResponse {
	return &ErrResponse{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("method not found: %s", method),
	}
}
