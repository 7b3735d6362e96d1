package jsonrpc2

import (
	"encoding/json"
)

// Replier has enough context to respond to an incoming call, usually the
// remote it arrived on and the call's ID.
type Replier interface {
	// Reply sends a success response with the call's ID.
	Reply(result interface{}, ext Extensions) error
	// Fail sends an error response with the call's ID.
	Fail(errValue interface{}, ext Extensions) error
}

type reply struct {
	remote *Remote
	id     json.RawMessage
}

func (rep *reply) Reply(result interface{}, ext Extensions) error {
	return rep.remote.SendResult(rep.id, result, ext)
}

func (rep *reply) Fail(errValue interface{}, ext Extensions) error {
	return rep.remote.SendError(rep.id, errValue, ext)
}

// Reply answers the call with a result.
func (call *IncomingCall) Reply(result interface{}, ext Extensions) error {
	if call.replier == nil {
		return ErrReplyNotAvailable
	}
	return call.replier.Reply(result, ext)
}

// Fail answers the call with an error. An *ErrResponse is sent as is, any
// other error is sent as an internal error.
func (call *IncomingCall) Fail(errValue interface{}, ext Extensions) error {
	if call.replier == nil {
		return ErrReplyNotAvailable
	}
	return call.replier.Fail(errValue, ext)
}
