package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

const Version = "2.0"

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeServer         = -32000
)

// Standard message keys. Anything else on the top level of a message is an
// extension field.
const (
	keyVersion = "jsonrpc"
	keyID      = "id"
	keyMethod  = "method"
	keyParams  = "params"
	keyResult  = "result"
	keyError   = "error"
)

// Kind is the classification of a message, derived only from which fields
// are present.
type Kind int

const (
	KindInvalid Kind = iota
	KindCall
	KindEvent
	KindSuccess
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindEvent:
		return "event"
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	}
	return "invalid"
}

type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`

	// rawMethod holds a method value that is not a string.
	rawMethod json.RawMessage
}

type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrResponse    `json:"error,omitempty"`
}

// Message is a single JSON-RPC frame. A nil Request means the method key was
// absent, a nil ID means the id key was absent.
type Message struct {
	ID      json.RawMessage
	Version string
	*Request
	*Response

	// Extensions holds every top-level field outside of the standard
	// vocabulary. Values are carried verbatim in both directions.
	Extensions Extensions
}

// Kind classifies the message: id+method is a call, id alone is a response
// (failure when an error is present), method alone is an event.
func (msg *Message) Kind() Kind {
	hasID := msg.ID != nil
	hasMethod := msg.Request != nil
	switch {
	case hasID && hasMethod:
		return KindCall
	case hasID:
		if msg.Response != nil && msg.Response.Error != nil {
			return KindFailure
		}
		return KindSuccess
	case hasMethod:
		return KindEvent
	}
	return KindInvalid
}

func (msg *Message) String() string {
	out, err := json.Marshal(msg)
	if err != nil {
		return fmt.Sprintf("<invalid message: %s>", err)
	}
	return string(out)
}

// MarshalJSON merges the standard fields with the extension fields.
// Extensions never override a standard field that is set.
func (msg *Message) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(msg.Extensions)+4)
	for k, v := range msg.Extensions {
		fields[k] = v
	}
	if msg.Version != "" {
		v, err := json.Marshal(msg.Version)
		if err != nil {
			return nil, err
		}
		fields[keyVersion] = v
	}
	if msg.ID != nil {
		fields[keyID] = msg.ID
	}
	if msg.Request != nil {
		method, err := json.Marshal(msg.Request.Method)
		if err != nil {
			return nil, err
		}
		if msg.Request.rawMethod != nil {
			method = msg.Request.rawMethod
		}
		fields[keyMethod] = method
		if msg.Request.Params != nil {
			fields[keyParams] = msg.Request.Params
		}
	}
	if msg.Response != nil {
		if msg.Response.Error != nil {
			errPayload, err := json.Marshal(msg.Response.Error)
			if err != nil {
				return nil, err
			}
			fields[keyError] = errPayload
		} else if msg.Response.Result != nil {
			fields[keyResult] = msg.Response.Result
		} else {
			fields[keyResult] = json.RawMessage("null")
		}
	}
	return json.Marshal(fields)
}

// UnmarshalJSON splits a frame into standard fields and extensions. params
// only belong to a request when a method is present; result and error only
// belong to a response when it is absent. Misplaced standard keys stay in
// Extensions so that encoding the message again is lossless.
//
// Only the presence of id and method matters for classification. A version
// that is not a string is ignored, and a method that is not a string is kept
// raw so the call can still be answered.
func (msg *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("message is not an object: %s", data)
	}
	*msg = Message{}

	if v, ok := fields[keyVersion]; ok {
		if json.Unmarshal(v, &msg.Version) != nil {
			msg.Version = ""
		}
		delete(fields, keyVersion)
	}
	if v, ok := fields[keyID]; ok {
		msg.ID = v
		delete(fields, keyID)
	}
	if v, ok := fields[keyMethod]; ok {
		msg.Request = &Request{}
		if json.Unmarshal(v, &msg.Request.Method) != nil {
			msg.Request.rawMethod = v
		}
		delete(fields, keyMethod)
		if params, ok := fields[keyParams]; ok {
			msg.Request.Params = params
			delete(fields, keyParams)
		}
	} else if errPayload, ok := fields[keyError]; ok {
		msg.Response = &Response{Error: &ErrResponse{}}
		if err := json.Unmarshal(errPayload, msg.Response.Error); err != nil {
			return err
		}
		delete(fields, keyError)
	} else if result, ok := fields[keyResult]; ok {
		msg.Response = &Response{Result: result}
		delete(fields, keyResult)
	}

	if len(fields) > 0 {
		msg.Extensions = Extensions(fields)
	}
	return nil
}

// EncodeMessage returns the wire text of a message.
func EncodeMessage(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses one wire frame. Failures are reported as DecodeError.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, DecodeError{Raw: data, Err: err}
	}
	return &msg, nil
}

// ErrResponse is the error payload of a failed call. Peers may send any JSON
// value as an error, the original payload is kept in Raw and the standard
// fields are filled in when it is an object.
type ErrResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`

	// Raw is the error payload as received. It is written back verbatim when
	// set.
	Raw json.RawMessage `json:"-"`
	// Extensions are the extension fields of the response that carried this
	// error.
	Extensions Extensions `json:"-"`
}

func (err *ErrResponse) Error() string {
	return fmt.Sprintf("%d: %s", err.Code, err.Message)
}

// ErrorCode returns the JSON-RPC error code.
func (err *ErrResponse) ErrorCode() int {
	return err.Code
}

type errResponseFields struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (err *ErrResponse) MarshalJSON() ([]byte, error) {
	if err.Raw != nil {
		return err.Raw, nil
	}
	return json.Marshal(errResponseFields{err.Code, err.Message, err.Data})
}

func (err *ErrResponse) UnmarshalJSON(data []byte) error {
	err.Raw = append(json.RawMessage(nil), data...)
	if isObject(data) {
		var fields errResponseFields
		if jsonErr := json.Unmarshal(data, &fields); jsonErr == nil {
			err.Code, err.Message, err.Data = fields.Code, fields.Message, fields.Data
			return nil
		}
	}
	// Non-standard payload: keep the raw value and a readable message.
	var msg string
	if json.Unmarshal(data, &msg) == nil {
		err.Message = msg
	} else {
		err.Message = string(data)
	}
	return nil
}

// Reply is the outcome of a successful call.
type Reply struct {
	Result     json.RawMessage
	Extensions Extensions
}

// UnmarshalResult decodes the result into v. A missing or null result leaves
// v untouched.
func (r *Reply) UnmarshalResult(v interface{}) error {
	if v == nil || len(r.Result) == 0 || string(r.Result) == "null" {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// IncomingCall is a call received from the peer. It must be answered with
// Reply or Fail (or Remote.SendResult/SendError with the same ID).
type IncomingCall struct {
	ID         json.RawMessage
	Method     string
	Params     json.RawMessage
	Extensions Extensions

	replier Replier
}

// Event is a one-way message received from the peer.
type Event struct {
	Name       string
	Data       json.RawMessage
	Extensions Extensions
}
