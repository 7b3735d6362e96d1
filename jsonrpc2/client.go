package jsonrpc2

import (
	"encoding/json"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces call tokens. Tokens must not repeat while a call with
// the same token is outstanding on the same Remote.
type IDGenerator interface {
	NextID() (json.RawMessage, error)
}

var _ IDGenerator = &Counter{}

// Counter generates sequential numeric IDs starting from 1.
type Counter struct {
	id uint64
}

func (c *Counter) NextID() (json.RawMessage, error) {
	n := atomic.AddUint64(&c.id, 1)
	return json.RawMessage(strconv.FormatUint(n, 10)), nil
}

var _ IDGenerator = UUIDGenerator{}

// UUIDGenerator generates random string IDs, for peers that treat IDs as
// opaque strings.
type UUIDGenerator struct{}

func (UUIDGenerator) NextID() (json.RawMessage, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return json.Marshal(id.String())
}

// Client builds outgoing messages.
type Client struct {
	// IDs overrides the ID generator. (Optional, defaults to a Counter)
	IDs IDGenerator

	counter Counter
}

func (c *Client) NextID() (json.RawMessage, error) {
	if c.IDs != nil {
		return c.IDs.NextID()
	}
	return c.counter.NextID()
}

// Request builds a call with positional params.
func (c *Client) Request(method string, params ...interface{}) (*Message, error) {
	if params == nil {
		params = []interface{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return c.NewCall(method, json.RawMessage(rawParams), nil)
}

// NewCall builds a call message with a fresh ID. A params value that is not
// an array is wrapped into a one-element array.
func (c *Client) NewCall(method string, params interface{}, ext Extensions) (*Message, error) {
	id, err := c.NextID()
	if err != nil {
		return nil, err
	}
	rawParams, err := positionalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:      id,
		Version: Version,
		Request: &Request{
			Method: method,
			Params: rawParams,
		},
		Extensions: ext,
	}, nil
}

// newEvent builds an event message, data is normalized like call params.
func newEvent(name string, data interface{}, ext Extensions) (*Message, error) {
	rawData, err := positionalParams(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Version: Version,
		Request: &Request{
			Method: name,
			Params: rawData,
		},
		Extensions: ext,
	}, nil
}

// newResult builds a success response for the call with the given ID.
func newResult(id json.RawMessage, value interface{}, ext Extensions) (*Message, error) {
	raw, ok := value.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(value); err != nil {
			return nil, err
		}
	}
	return &Message{
		ID:         id,
		Version:    Version,
		Response:   &Response{Result: raw},
		Extensions: ext,
	}, nil
}

// newError builds a failure response. An *ErrResponse is sent as is, other
// errors become internal errors, any other value is sent verbatim as the
// error payload.
func newError(id json.RawMessage, value interface{}, ext Extensions) (*Message, error) {
	var errResp *ErrResponse
	switch v := value.(type) {
	case *ErrResponse:
		errResp = v
	case error:
		errResp = &ErrResponse{
			Code:    ErrCodeInternal,
			Message: v.Error(),
		}
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		errResp = &ErrResponse{Raw: raw}
	}
	return &Message{
		ID:         id,
		Version:    Version,
		Response:   &Response{Error: errResp},
		Extensions: ext,
	}, nil
}
