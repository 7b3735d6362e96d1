package jsonrpc2

import (
	"context"
	"encoding/json"
	"sync"
)

// Call is an outgoing call awaiting its response.
type Call struct {
	ID     json.RawMessage
	Method string

	once  sync.Once
	done  chan struct{}
	reply *Reply
	err   error
}

func newCall(msg *Message) *Call {
	return &Call{
		ID:     msg.ID,
		Method: msg.Method,
		done:   make(chan struct{}),
	}
}

// Done is closed once the call has a reply or an error.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome of a completed call. The error is an
// *ErrResponse when the peer answered with an error. Result must only be
// called after Done is closed.
func (c *Call) Result() (*Reply, error) {
	return c.reply, c.err
}

// Wait blocks until the call completes or ctx ends. Giving up on the wait
// leaves the call pending, use Remote.Expire to drop it.
func (c *Call) Wait(ctx context.Context) (*Reply, error) {
	select {
	case <-c.done:
		return c.reply, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve and reject complete the call. Only the first completion counts.
func (c *Call) resolve(reply *Reply) bool {
	return c.complete(reply, nil)
}

func (c *Call) reject(err error) bool {
	return c.complete(nil, err)
}

func (c *Call) complete(reply *Reply, err error) bool {
	completed := false
	c.once.Do(func() {
		c.reply, c.err = reply, err
		close(c.done)
		completed = true
	})
	return completed
}
