package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

type FruitService struct{}

func (f *FruitService) Apple() string {
	return "Apple"
}

func (f *FruitService) Banana() error {
	return nil
}

func (f *FruitService) Cherry() (string, error) {
	return "Cherry", nil
}

func (f *FruitService) Durian() error {
	return errors.New("durian failure")
}

func (f *FruitService) Sum(a, b int) int {
	return a + b
}

func (f *FruitService) Traced(ext Extensions, fruit string) (string, error) {
	var trace string
	if _, err := ext.Get("trace", &trace); err != nil {
		return "", err
	}
	return fruit + "@" + trace, nil
}

type Pinger struct {
	PongService Service
}

func (f *Pinger) Ping() string {
	return "ping"
}

func (f *Pinger) PingPong() string {
	var pong string
	err := f.PongService.Call(context.Background(), &pong, "pong")
	if err != nil {
		return fmt.Sprintf("err: %s", err)
	}
	return "ping" + pong
}

type Ponger struct{}

func (b *Ponger) Pong() string {
	return "pong"
}

type Fib struct{}

func (f *Fib) Fibonacci(ctx context.Context, a int, b int, steps int) (int, error) {
	service, err := CtxService(ctx)
	if err != nil {
		return 0, err
	}
	a, b = b, a+b
	if steps <= 0 {
		return b, nil
	}
	if err := service.Call(ctx, &b, "fibonacci", a, b, steps-1); err != nil {
		return 0, err
	}
	return b, nil
}

func assertEqualJSON(t *testing.T, a, b interface{}, format string, args ...interface{}) {
	t.Helper()

	aa, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Compare(aa, bb) != 0 {
		prefix := fmt.Sprintf(format, args...)
		t.Errorf(prefix+"\n   got: %q\n  want: %q", aa, bb)
	}
}

const testTimeout = 2 * time.Second

// rawPeer is the far end of a pipe, driven by hand: it collects everything
// the remote sends and writes raw frames back.
type rawPeer struct {
	conn     net.Conn
	received chan *Message
}

func newRawPeer(conn net.Conn) *rawPeer {
	p := &rawPeer{
		conn:     conn,
		received: make(chan *Message, 32),
	}
	codec := IOCodec(conn)
	go func() {
		defer close(p.received)
		for {
			msg, err := codec.ReadMessage()
			if err != nil {
				return
			}
			p.received <- msg
		}
	}()
	return p
}

// pipeRemote returns a remote under test wired to a raw peer.
func pipeRemote(handler Handler) (*Remote, *rawPeer) {
	c1, c2 := net.Pipe()
	return Wrap(IOCodec(c1), handler), newRawPeer(c2)
}

func (p *rawPeer) next(t *testing.T) *Message {
	t.Helper()
	select {
	case msg, ok := <-p.received:
		if !ok {
			t.Fatal("peer connection closed")
		}
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a message")
	}
	return nil
}

func (p *rawPeer) send(t *testing.T, format string, args ...interface{}) {
	t.Helper()
	if _, err := fmt.Fprintf(p.conn, format+"\n", args...); err != nil {
		t.Fatal(err)
	}
}

func (p *rawPeer) Close() error {
	return p.conn.Close()
}

// recorder is a Handler that collects what it receives.
type recorder struct {
	calls  chan *IncomingCall
	events chan *Event
}

func newRecorder() *recorder {
	return &recorder{
		calls:  make(chan *IncomingCall, 32),
		events: make(chan *Event, 32),
	}
}

func (r *recorder) HandleCall(ctx context.Context, call *IncomingCall) {
	r.calls <- call
}

func (r *recorder) HandleEvent(ctx context.Context, event *Event) {
	r.events <- event
}

func (r *recorder) nextEvent(t *testing.T) *Event {
	t.Helper()
	select {
	case event := <-r.events:
		return event
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for an event")
	}
	return nil
}

func (r *recorder) nextCall(t *testing.T) *IncomingCall {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a call")
	}
	return nil
}

func waitCall(t *testing.T, call *Call) (*Reply, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	reply, err := call.Wait(ctx)
	if err == context.DeadlineExceeded {
		t.Fatalf("call %s did not complete", call.ID)
	}
	return reply, err
}

// fixedIDs hands out the given IDs in order.
type fixedIDs struct {
	mu  sync.Mutex
	ids []string
}

func (g *fixedIDs) NextID() (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		return nil, errors.New("out of ids")
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return json.RawMessage(id), nil
}
