package jsonrpc2

import (
	"context"
	"fmt"
)

// handleMessage classifies one incoming message and routes it. It runs on the
// transport's read loop, so each message is handled to completion before the
// next one is read.
func (r *Remote) handleMessage(msg *Message) {
	switch msg.Kind() {
	case KindCall:
		if msg.rawMethod != nil {
			logger.Printf("Rejecting call with invalid method: %s", msg)
			errResp := &ErrResponse{
				Code:    ErrCodeInvalidRequest,
				Message: fmt.Sprintf("invalid method: %s", msg.rawMethod),
			}
			if err := r.SendError(msg.ID, errResp, nil); err != nil {
				logger.Printf("Failed to reject call: %s", err)
			}
			return
		}
		call := &IncomingCall{
			ID:         msg.ID,
			Method:     msg.Method,
			Params:     msg.Params,
			Extensions: msg.Extensions.clone(),
			replier:    &reply{remote: r, id: msg.ID},
		}
		r.handler().HandleCall(r.context(), call)
	case KindEvent:
		if msg.rawMethod != nil {
			logger.Printf("Dropping event with invalid name: %s", msg)
			return
		}
		event := &Event{
			Name:       msg.Method,
			Data:       msg.Params,
			Extensions: msg.Extensions.clone(),
		}
		r.handler().HandleEvent(r.context(), event)
	case KindSuccess:
		reply := &Reply{Extensions: msg.Extensions.clone()}
		if msg.Response != nil {
			reply.Result = msg.Response.Result
		}
		if !r.pending.resolveCall(string(msg.ID), reply) {
			logger.Printf("Dropping orphaned response: %s", msg)
		}
	case KindFailure:
		errResp := *msg.Response.Error
		errResp.Extensions = msg.Extensions.clone()
		if !r.pending.rejectCall(string(msg.ID), &errResp) {
			logger.Printf("Dropping orphaned error response: %s", msg)
		}
	default:
		logger.Printf("Dropping invalid message: %s", msg)
	}
}

func (r *Remote) context() context.Context {
	return context.WithValue(context.Background(), ctxService, r)
}

func (r *Remote) handler() Handler {
	if r.Handler == nil {
		return HandlerFuncs{}
	}
	return r.Handler
}
