package jsonrpc2

import (
	"context"
	"errors"
	"sync"
)

// State of a Transport's connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	}
	return "unknown"
}

// Dialer opens a new codec to url. The websocket subpackages provide
// implementations.
type Dialer func(ctx context.Context, url string) (Codec, error)

// Transport owns the connection underneath a Remote.
type Transport interface {
	// Run reads messages and passes each one to handle, in order, until the
	// transport is done. It returns nil after Close.
	Run(handle func(*Message)) error
	// WriteMessage sends a message, or returns ErrNotOpen when the connection
	// is not open.
	WriteMessage(*Message) error
	// State returns the current connection state.
	State() State
	// Done is closed once the transport will never be open again.
	Done() <-chan struct{}
	// Close stops the transport for good.
	Close() error
}

// readLoop feeds messages from codec to handle until a read fails. Frames
// that cannot be decoded are dropped.
func readLoop(codec Codec, handle func(*Message)) error {
	for {
		msg, err := codec.ReadMessage()
		var decodeErr DecodeError
		if errors.As(err, &decodeErr) {
			logger.Printf("Dropping undecodable message: %s", decodeErr)
			continue
		}
		if err != nil {
			return err
		}
		handle(msg)
	}
}

var _ Transport = &attached{}

// Attach returns a Transport over a codec that is already connected. It never
// reconnects: once the codec fails or is closed, the transport is done and the
// codec is closed.
func Attach(codec Codec) Transport {
	return &attached{
		codec: codec,
		state: Open,
		done:  make(chan struct{}),
	}
}

type attached struct {
	codec Codec

	mu    sync.Mutex
	state State
	done  chan struct{}
	once  sync.Once
}

func (t *attached) Run(handle func(*Message)) error {
	err := readLoop(t.codec, handle)
	t.mu.Lock()
	closing := t.state == Closing
	if !closing {
		t.state = Disconnected
	}
	t.mu.Unlock()
	t.finish()
	if closing {
		return nil
	}
	t.codec.Close()
	return err
}

func (t *attached) WriteMessage(msg *Message) error {
	if t.State() != Open {
		return ErrNotOpen
	}
	return t.codec.WriteMessage(msg)
}

func (t *attached) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *attached) Done() <-chan struct{} {
	return t.done
}

func (t *attached) Close() error {
	t.mu.Lock()
	if t.state == Closing {
		t.mu.Unlock()
		return nil
	}
	t.state = Closing
	t.mu.Unlock()
	t.finish()
	return t.codec.Close()
}

func (t *attached) finish() {
	t.once.Do(func() { close(t.done) })
}
