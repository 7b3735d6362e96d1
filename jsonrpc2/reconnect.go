package jsonrpc2

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryDelay is the pause between a lost connection and the next dial.
const DefaultRetryDelay = 100 * time.Millisecond

var _ Transport = &Reconnector{}

// Reconnector is a Transport that dials URL and redials whenever the
// connection drops, until it is closed. Connection errors are never surfaced,
// they only move the state machine:
//
//	Disconnected -> Connecting -> Open -> Disconnected -> (delay) -> Connecting ...
//	any state -> Closing (terminal, on Close)
//
// Each new connection gets a fresh codec from Dial.
type Reconnector struct {
	URL  string
	Dial Dialer

	// RetryDelay is the fixed pause before redialing. (Optional, defaults to
	// DefaultRetryDelay)
	RetryDelay time.Duration
	// Backoff overrides the retry policy, for example with growth or an
	// attempt ceiling. When it returns backoff.Stop, Run gives up with
	// ErrRetryLimit. It is Reset after every successful dial. (Optional)
	Backoff backoff.BackOff
	// DialTimeout bounds each dial attempt. (Optional)
	DialTimeout time.Duration
	// OnState is called after every state transition. (Optional)
	OnState func(State)

	initOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	state   State
	codec   Codec
	started bool
	closed  bool
}

func (rc *Reconnector) init() {
	rc.initOnce.Do(func() {
		rc.ctx, rc.cancel = context.WithCancel(context.Background())
		rc.done = make(chan struct{})
	})
}

func (rc *Reconnector) policy() backoff.BackOff {
	if rc.Backoff != nil {
		return rc.Backoff
	}
	delay := rc.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return backoff.NewConstantBackOff(delay)
}

// setState moves to state and tracks the current codec. It refuses to leave
// Closing and reports whether the transition happened.
func (rc *Reconnector) setState(state State, codec Codec) bool {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return false
	}
	rc.state = state
	rc.codec = codec
	rc.mu.Unlock()

	if rc.OnState != nil {
		rc.OnState(state)
	}
	return true
}

// Run connects and serves until Close is called or the backoff policy gives
// up.
func (rc *Reconnector) Run(handle func(*Message)) error {
	rc.init()
	rc.mu.Lock()
	if rc.started {
		rc.mu.Unlock()
		return errors.New("reconnector is already running")
	}
	rc.started = true
	rc.mu.Unlock()
	defer rc.finish()

	policy := rc.policy()
	for {
		if !rc.setState(Connecting, nil) {
			return nil
		}
		codec, err := rc.dial()
		if err != nil {
			logger.Printf("Failed to connect to %s: %s", rc.URL, err)
		} else if !rc.setState(Open, codec) {
			codec.Close()
			return nil
		} else {
			policy.Reset()
			logger.Printf("Connected to %s", rc.URL)
			err = readLoop(codec, handle)
			codec.Close()
			logger.Printf("Connection to %s lost: %s", rc.URL, err)
		}

		if !rc.setState(Disconnected, nil) {
			return nil
		}
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			logger.Printf("Giving up on %s", rc.URL)
			return ErrRetryLimit
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-rc.ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (rc *Reconnector) dial() (Codec, error) {
	ctx := rc.ctx
	if rc.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.DialTimeout)
		defer cancel()
	}
	return rc.Dial(ctx, rc.URL)
}

func (rc *Reconnector) WriteMessage(msg *Message) error {
	rc.mu.Lock()
	codec := rc.codec
	open := rc.state == Open
	rc.mu.Unlock()
	if !open || codec == nil {
		return ErrNotOpen
	}
	return codec.WriteMessage(msg)
}

func (rc *Reconnector) State() State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

func (rc *Reconnector) Done() <-chan struct{} {
	rc.init()
	return rc.done
}

// Close moves to the terminal Closing state, aborts any dial in progress and
// closes the current connection.
func (rc *Reconnector) Close() error {
	rc.init()
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return nil
	}
	rc.closed = true
	rc.state = Closing
	codec := rc.codec
	rc.codec = nil
	rc.mu.Unlock()

	if rc.OnState != nil {
		rc.OnState(Closing)
	}
	rc.cancel()
	rc.finish()
	if codec != nil {
		return codec.Close()
	}
	return nil
}

func (rc *Reconnector) finish() {
	rc.doneOnce.Do(func() { close(rc.done) })
}
