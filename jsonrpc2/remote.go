package jsonrpc2

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"
)

// DefaultSendRetryInterval is how often a message is retried while the
// transport is not open.
const DefaultSendRetryInterval = 100 * time.Millisecond

// ServePipe sets up symmetric remotes over a net.Pipe() and starts serving
// both in goroutines. Useful for testing. Services still need to be
// registered on each Server.
func ServePipe() (*Remote, *Remote) {
	c1, c2 := net.Pipe()
	server := Wrap(IOCodec(c2), &Server{})
	client := Wrap(IOCodec(c1), &Server{})
	return server, client
}

type serviceContext string

var ctxService serviceContext = "service"

// CtxService returns the Service associated with the remote that received a
// call or event. This is useful for initiating bidirectional calls.
func CtxService(ctx context.Context) (Service, error) {
	s, ok := ctx.Value(ctxService).(Service)
	if !ok {
		return nil, ErrContextMissingValue{ctxService}
	}
	return s, nil
}

// Service represents a remote service that can be called.
type Service interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

var _ Service = &Remote{}

// Remote is one side of a bidirectional JSON-RPC connection. It sends calls
// and correlates their responses, sends events, and hands incoming calls and
// events to its Handler.
//
// Responses are matched by ID only, compared as raw JSON text: the peer must
// echo the ID exactly as it was sent, so 1 and 1.0, or "a" and "\u0061", are
// different IDs. A response for an ID that is not pending (late, duplicate,
// or from before a reconnect) is dropped. Dropped connections are not
// surfaced to pending calls: they stay pending until answered or expired, or
// until the Remote is closed.
type Remote struct {
	Transport Transport
	// Handler receives incoming calls and events. (Optional, calls are
	// answered with a method-not-found error when unset)
	Handler Handler
	// Client builds outgoing messages and owns the ID generator. (Optional)
	Client *Client

	// SendRetryInterval is the poll interval for sends attempted while the
	// transport is not open. (Optional, defaults to DefaultSendRetryInterval)
	SendRetryInterval time.Duration

	// PendingLimit is the number of pending calls to hold before the oldest
	// get rejected with ErrCallEvicted. (Optional)
	PendingLimit int
	// PendingDiscard is the number of oldest calls that get rejected when
	// PendingLimit is reached.
	PendingDiscard int

	initOnce sync.Once
	pending  pendingTable
	waitCh   chan error
}

// Dial returns a Remote that connects to url with dial and reconnects
// whenever the connection drops. It is serving when returned.
func Dial(url string, dial Dialer, handler Handler) *Remote {
	r := &Remote{
		Transport: &Reconnector{URL: url, Dial: dial},
		Handler:   handler,
	}
	r.Start()
	return r
}

// Wrap returns a Remote over an already connected codec. It never reconnects.
// It is serving when returned.
func Wrap(codec Codec, handler Handler) *Remote {
	r := &Remote{
		Transport: Attach(codec),
		Handler:   handler,
	}
	r.Start()
	return r
}

func (r *Remote) init() {
	r.initOnce.Do(func() {
		if r.Client == nil {
			r.Client = &Client{}
		}
		r.pending.limit = r.PendingLimit
		r.pending.discard = r.PendingDiscard
		r.waitCh = make(chan error, 1)
	})
}

// Start runs Serve in a goroutine, see Wait.
func (r *Remote) Start() {
	r.init()
	go func() {
		r.waitCh <- r.Serve()
	}()
}

// Wait blocks until a Serve started with Start returns, and returns its error.
func (r *Remote) Wait() error {
	r.init()
	return <-r.waitCh
}

// Serve runs the transport, dispatching every incoming message, until the
// transport is done.
func (r *Remote) Serve() error {
	r.init()
	return r.Transport.Run(r.handleMessage)
}

// Go sends a call and returns without waiting for the response. A params
// value that does not encode to a JSON array is wrapped into a one-element
// array.
func (r *Remote) Go(method string, params interface{}, ext Extensions) (*Call, error) {
	r.init()
	msg, err := r.Client.NewCall(method, params, ext)
	if err != nil {
		return nil, err
	}
	call := newCall(msg)
	evicted, err := r.pending.register(call)
	if err != nil {
		return nil, err
	}
	for _, old := range evicted {
		logger.Printf("Evicting pending call %s (%s)", old.ID, old.Method)
		old.reject(ErrCallEvicted)
	}
	if err := r.send(msg); err != nil {
		r.Expire(call, err)
		return nil, err
	}
	return call, nil
}

// Invoke sends a call and waits for its response. If ctx ends first, the call
// is expired with the context's error.
func (r *Remote) Invoke(ctx context.Context, method string, params interface{}, ext Extensions) (*Reply, error) {
	call, err := r.Go(method, params, ext)
	if err != nil {
		return nil, err
	}
	select {
	case <-call.Done():
	case <-ctx.Done():
		r.Expire(call, ctx.Err())
		<-call.Done()
	}
	return call.Result()
}

// Call sends a call with positional params, waits for the response and
// decodes its result into result.
func (r *Remote) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	reply, err := r.Invoke(ctx, method, params, nil)
	if err != nil {
		return err
	}
	return reply.UnmarshalResult(result)
}

// Event sends a one-way message. There is no confirmation of delivery.
func (r *Remote) Event(name string, data interface{}, ext Extensions) error {
	r.init()
	msg, err := newEvent(name, data, ext)
	if err != nil {
		return err
	}
	return r.send(msg)
}

// SendResult answers an incoming call with a result.
func (r *Remote) SendResult(id json.RawMessage, value interface{}, ext Extensions) error {
	r.init()
	msg, err := newResult(id, value, ext)
	if err != nil {
		return err
	}
	return r.send(msg)
}

// SendError answers an incoming call with an error, see newError for how
// errValue is encoded.
func (r *Remote) SendError(id json.RawMessage, errValue interface{}, ext Extensions) error {
	r.init()
	msg, err := newError(id, errValue, ext)
	if err != nil {
		return err
	}
	return r.send(msg)
}

// Expire removes a pending call and rejects it with err (ErrCallExpired if
// nil). It returns false if the call already completed. This is the hook for
// call timeouts: whichever of Expire and the response comes first wins.
func (r *Remote) Expire(call *Call, err error) bool {
	r.init()
	if err == nil {
		err = ErrCallExpired
	}
	if !r.pending.takeCall(call) {
		return false
	}
	return call.reject(err)
}

// ExpirePending expires every call that has been pending for longer than
// maxAge and returns how many were expired.
func (r *Remote) ExpirePending(maxAge time.Duration) int {
	r.init()
	calls := r.pending.takeOlder(r.pending.timeNow().Add(-maxAge))
	for _, call := range calls {
		call.reject(ErrCallExpired)
	}
	return len(calls)
}

// Pending returns the number of calls awaiting a response.
func (r *Remote) Pending() int {
	r.init()
	return r.pending.len()
}

// State returns the transport's connection state.
func (r *Remote) State() State {
	return r.Transport.State()
}

// Close shuts down the transport for good. Calls that are still pending are
// rejected with ErrClosed.
func (r *Remote) Close() error {
	r.init()
	err := r.Transport.Close()
	for _, call := range r.pending.takeAll() {
		call.reject(ErrClosed)
	}
	return err
}

func (r *Remote) sendRetryInterval() time.Duration {
	if r.SendRetryInterval > 0 {
		return r.SendRetryInterval
	}
	return DefaultSendRetryInterval
}

// send writes msg now if the transport is open, otherwise it keeps retrying
// in the background until it succeeds or the transport is done. Ordering
// between deferred messages is not preserved.
func (r *Remote) send(msg *Message) error {
	select {
	case <-r.Transport.Done():
		return ErrClosed
	default:
	}
	err := r.Transport.WriteMessage(msg)
	if err == nil {
		return nil
	}
	if err != ErrNotOpen {
		logger.Printf("Failed to send message, retrying: %s", err)
	}
	go r.retrySend(msg)
	return nil
}

func (r *Remote) retrySend(msg *Message) {
	ticker := time.NewTicker(r.sendRetryInterval())
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		select {
		case <-ticker.C:
		case <-r.Transport.Done():
			logger.Printf("Dropping unsent message after %d attempts: %s", attempt, msg)
			return
		}
		if err := r.Transport.WriteMessage(msg); err == nil {
			return
		}
	}
}
