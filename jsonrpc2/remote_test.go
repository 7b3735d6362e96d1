package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func serverOf(r *Remote) *Server {
	return r.Handler.(*Server)
}

func TestRemoteBidirectional(t *testing.T) {
	pingerClient, pongerClient := ServePipe()
	defer pingerClient.Close()
	defer pongerClient.Close()

	ponger := &Ponger{}
	serverOf(pingerClient).Register("", ponger)

	pinger := &Pinger{
		PongService: pongerClient,
	}
	serverOf(pongerClient).Register("", pinger)

	var got string
	if err := pongerClient.Call(context.Background(), &got, "pong"); err != nil {
		t.Error(err)
	}
	if want := "pong"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}

	if got, want := pinger.PingPong(), "pingpong"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}

	if err := pingerClient.Call(context.Background(), &got, "pingPong"); err != nil {
		t.Error(err)
	}
	if want := "pingpong"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}

func TestRemoteContextService(t *testing.T) {
	client1, client2 := ServePipe()
	defer client1.Close()
	defer client2.Close()

	fib := &Fib{}
	serverOf(client1).Register("", fib)
	serverOf(client2).Register("", fib)

	// 0, 1, 1, 2, 3, 5, 8, 13, 21
	var got int
	if err := client1.Call(context.Background(), &got, "fibonacci", 0, 1, 6); err != nil {
		t.Error(err)
	}
	if want := 21; got != want {
		t.Errorf("got: %d; want %d", got, want)
	}
}

func TestRemoteConcurrentCalls(t *testing.T) {
	client, server := ServePipe()
	defer client.Close()
	defer server.Close()
	serverOf(server).Register("", &FruitService{})

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			var got int
			if err := client.Call(context.Background(), &got, "sum", i, i); err != nil {
				return err
			}
			if got != i+i {
				return fmt.Errorf("sum(%d, %d): got %d", i, i, got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Error(err)
	}
	if got := client.Pending(); got != 0 {
		t.Errorf("pending calls leaked: %d", got)
	}
}

func TestRemoteServerErrors(t *testing.T) {
	client, server := ServePipe()
	defer client.Close()
	defer server.Close()
	serverOf(server).Register("", &FruitService{})

	testcases := []struct {
		method string
		params []interface{}
		code   int
	}{
		{"durian", nil, ErrCodeInternal},
		{"kiwi", nil, ErrCodeMethodNotFound},
		{"sum", []interface{}{1}, ErrCodeInvalidParams},
		{"sum", []interface{}{"a", "b"}, ErrCodeInvalidParams},
	}

	for i, tc := range testcases {
		err := client.Call(context.Background(), nil, tc.method, tc.params...)
		var errResp *ErrResponse
		if !errors.As(err, &errResp) {
			t.Errorf("[case %d] expected an error response, got: %v", i, err)
			continue
		}
		if errResp.Code != tc.code {
			t.Errorf("[case %d] got code: %d; want: %d", i, errResp.Code, tc.code)
		}
	}
}

func TestRemoteCallResult(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	call, err := r.Go("sum", []int{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := peer.next(t)
	if got, want := req.Kind(), KindCall; got != want {
		t.Fatalf("got kind: %s; want: %s", got, want)
	}
	if got, want := req.Method, "sum"; got != want {
		t.Errorf("got method: %q; want: %q", got, want)
	}
	if got, want := string(req.Params), "[1,2]"; got != want {
		t.Errorf("got params: %s; want: %s", got, want)
	}
	if got, want := req.Version, Version; got != want {
		t.Errorf("got version: %q; want: %q", got, want)
	}

	peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":3}`, req.ID)
	reply, err := waitCall(t, call)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&Reply{Result: json.RawMessage("3"), Extensions: Extensions{}}, reply); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	if got := r.Pending(); got != 0 {
		t.Errorf("got pending: %d; want: 0", got)
	}
}

func TestRemoteCallPending(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	ext, err := Ext("foo", "bar")
	if err != nil {
		t.Fatal(err)
	}
	call, err := r.Go("sum", []int{3, 2}, ext)
	if err != nil {
		t.Fatal(err)
	}
	req := peer.next(t)
	want := fmt.Sprintf(`{"foo":"bar","id":%s,"jsonrpc":"2.0","method":"sum","params":[3,2]}`, req.ID)
	if got := req.String(); got != want {
		t.Errorf("wrong request:\n   got: %s\n  want: %s", got, want)
	}

	// Nobody answers: the call stays pending.
	select {
	case <-call.Done():
		t.Fatal("call completed without a response")
	case <-time.After(50 * time.Millisecond):
	}
	if got := r.Pending(); got != 1 {
		t.Errorf("got pending: %d; want: 1", got)
	}
}

func TestRemoteParamsWrapped(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	testcases := []struct {
		params interface{}
		want   string
	}{
		{"hello", `["hello"]`},
		{42, `[42]`},
		{map[string]int{"a": 1}, `[{"a":1}]`},
		{[]string{"a", "b"}, `["a","b"]`},
		{json.RawMessage(`[true]`), `[true]`},
	}

	for i, tc := range testcases {
		if _, err := r.Go("echo", tc.params, nil); err != nil {
			t.Fatal(err)
		}
		if got := string(peer.next(t).Params); got != tc.want {
			t.Errorf("[case %d] got params: %s; want: %s", i, got, tc.want)
		}
	}

	// No params at all omits the key.
	if _, err := r.Go("ping", nil, nil); err != nil {
		t.Fatal(err)
	}
	if req := peer.next(t); req.Params != nil {
		t.Errorf("expected no params, got: %s", req.Params)
	}
}

func TestRemoteEvents(t *testing.T) {
	h := newRecorder()
	r, peer := pipeRemote(h)
	defer r.Close()

	peer.send(t, `{"jsonrpc":"2.0","method":"tick","params":[1]}`)
	event := h.nextEvent(t)
	if diff := cmp.Diff(&Event{Name: "tick", Data: json.RawMessage("[1]"), Extensions: Extensions{}}, event); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}

	peer.send(t, `{"jsonrpc":"2.0","method":"tock","room":"lobby"}`)
	event = h.nextEvent(t)
	if diff := cmp.Diff(&Event{Name: "tock", Extensions: Extensions{"room": json.RawMessage(`"lobby"`)}}, event); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}

	// Outgoing events.
	ext, err := Ext("room", "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Event("hello", "world", ext); err != nil {
		t.Fatal(err)
	}
	if got, want := peer.next(t).String(), `{"jsonrpc":"2.0","method":"hello","params":["world"],"room":"lobby"}`; got != want {
		t.Errorf("wrong event:\n   got: %s\n  want: %s", got, want)
	}
}

func TestRemoteCallError(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()
	r.Client = &Client{IDs: &fixedIDs{ids: []string{`"x"`}}}

	call, err := r.Go("explode", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(peer.next(t).ID), `"x"`; got != want {
		t.Fatalf("got id: %s; want: %s", got, want)
	}

	peer.send(t, `{"jsonrpc":"2.0","id":"x","error":{"code":-1,"message":"bad"},"trace":"abc"}`)
	_, err = waitCall(t, call)
	var errResp *ErrResponse
	if !errors.As(err, &errResp) {
		t.Fatalf("expected an error response, got: %v", err)
	}
	if got, want := errResp.Code, -1; got != want {
		t.Errorf("got code: %d; want: %d", got, want)
	}
	if got, want := errResp.Message, "bad"; got != want {
		t.Errorf("got message: %q; want: %q", got, want)
	}
	if diff := cmp.Diff(Extensions{"trace": json.RawMessage(`"abc"`)}, errResp.Extensions); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoteInterleavedResponses(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	var calls []*Call
	var ids []json.RawMessage
	for i := 0; i < 3; i++ {
		call, err := r.Go("echo", i, nil)
		if err != nil {
			t.Fatal(err)
		}
		calls = append(calls, call)
		ids = append(ids, peer.next(t).ID)
	}

	// Answer in reverse order.
	for i := len(ids) - 1; i >= 0; i-- {
		peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":%d}`, ids[i], i*10)
	}
	for i, call := range calls {
		reply, err := waitCall(t, call)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := string(reply.Result), fmt.Sprint(i*10); got != want {
			t.Errorf("call %d: got: %s; want: %s", i, got, want)
		}
	}
}

func TestRemoteOrphanAndDuplicate(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	call, err := r.Go("sum", []int{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	id := peer.next(t).ID

	// Unknown id: dropped, nothing changes.
	peer.send(t, `{"jsonrpc":"2.0","id":999,"result":1}`)
	peer.send(t, `{"jsonrpc":"2.0","id":998,"error":{"code":-1,"message":"bad"}}`)
	if got := r.Pending(); got != 1 {
		t.Errorf("got pending: %d; want: 1", got)
	}

	peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":3}`, id)
	peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":4}`, id)
	peer.send(t, `{"jsonrpc":"2.0","id":%s,"error":"late"}`, id)

	reply, err := waitCall(t, call)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(reply.Result), "3"; got != want {
		t.Errorf("got: %s; want: %s", got, want)
	}
	if got := r.Pending(); got != 0 {
		t.Errorf("got pending: %d; want: 0", got)
	}
}

func TestRemoteDropsInvalid(t *testing.T) {
	h := newRecorder()
	r, peer := pipeRemote(h)
	defer r.Close()

	peer.send(t, `{"jsonrpc":"2.0"}`)
	peer.send(t, `[1,2,3]`)
	peer.send(t, `"hello"`)
	peer.send(t, `{"jsonrpc":"2.0","method":17}`)
	peer.send(t, `{"jsonrpc":"2.0","method":"after"}`)

	// The read loop survived everything above.
	if got, want := h.nextEvent(t).Name, "after"; got != want {
		t.Errorf("got: %q; want: %q", got, want)
	}
	select {
	case call := <-h.calls:
		t.Errorf("unexpected call: %v", call)
	case event := <-h.events:
		t.Errorf("unexpected event: %v", event)
	default:
	}
}

func TestRemoteUUIDs(t *testing.T) {
	c1, c2 := net.Pipe()
	r := &Remote{
		Transport: Attach(IOCodec(c1)),
		Client:    &Client{IDs: UUIDGenerator{}},
	}
	r.Start()
	defer r.Close()
	peer := newRawPeer(c2)

	first, err := r.Go("sum", []int{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Go("sum", []int{3, 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	req1, req2 := peer.next(t), peer.next(t)
	for _, req := range []*Message{req1, req2} {
		var s string
		if err := json.Unmarshal(req.ID, &s); err != nil {
			t.Fatalf("id is not a JSON string: %s", req.ID)
		}
		if _, err := uuid.Parse(s); err != nil {
			t.Errorf("id is not a UUID: %s", req.ID)
		}
	}
	if string(req1.ID) == string(req2.ID) {
		t.Fatalf("ids repeated: %s", req1.ID)
	}

	peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":7}`, req2.ID)
	peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":3}`, req1.ID)
	for _, tc := range []struct {
		call *Call
		want string
	}{{first, "3"}, {second, "7"}} {
		reply, err := waitCall(t, tc.call)
		if err != nil {
			t.Fatal(err)
		}
		if got := string(reply.Result); got != tc.want {
			t.Errorf("got: %s; want: %s", got, tc.want)
		}
	}
}

func TestRemoteMatchesRawID(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	call, err := r.Go("sum", []int{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(peer.next(t).ID), "1"; got != want {
		t.Fatalf("got id: %s; want: %s", got, want)
	}

	// Same number, different text: not the same call.
	peer.send(t, `{"jsonrpc":"2.0","id":1.0,"result":"wrong"}`)
	peer.send(t, `{"jsonrpc":"2.0","id":1,"result":3}`)
	reply, err := waitCall(t, call)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(reply.Result), "3"; got != want {
		t.Errorf("got: %s; want: %s", got, want)
	}
}

func TestRemoteIgnoresVersionValue(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	call, err := r.Go("sum", []int{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := peer.next(t)
	peer.send(t, `{"jsonrpc":2.0,"id":%s,"result":3}`, req.ID)

	reply, err := waitCall(t, call)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(reply.Result), "3"; got != want {
		t.Errorf("got: %s; want: %s", got, want)
	}
	if got := r.Pending(); got != 0 {
		t.Errorf("got pending: %d; want: 0", got)
	}
}

func TestRemoteInvalidMethod(t *testing.T) {
	h := newRecorder()
	r, peer := pipeRemote(h)
	defer r.Close()

	peer.send(t, `{"jsonrpc":"2.0","id":7,"method":5,"params":[1]}`)
	resp := peer.next(t)
	if got, want := string(resp.ID), "7"; got != want {
		t.Errorf("got id: %s; want: %s", got, want)
	}
	if resp.Response == nil || resp.Response.Error == nil {
		t.Fatalf("expected an error response, got: %s", resp)
	}
	if got, want := resp.Response.Error.Code, ErrCodeInvalidRequest; got != want {
		t.Errorf("got code: %d; want: %d", got, want)
	}

	// The host never saw it.
	peer.send(t, `{"jsonrpc":"2.0","method":"after"}`)
	if got, want := h.nextEvent(t).Name, "after"; got != want {
		t.Errorf("got: %q; want: %q", got, want)
	}
	select {
	case call := <-h.calls:
		t.Errorf("unexpected call: %v", call)
	default:
	}
}

func TestRemoteExpire(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()

	call, err := r.Go("slow", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	id := peer.next(t).ID

	if !r.Expire(call, nil) {
		t.Fatal("expire failed")
	}
	if r.Expire(call, nil) {
		t.Error("call expired twice")
	}
	if _, err := waitCall(t, call); err != ErrCallExpired {
		t.Errorf("got: %v; want: %v", err, ErrCallExpired)
	}

	// The late response is an orphan now.
	peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":1}`, id)
	if _, err := call.Result(); err != ErrCallExpired {
		t.Errorf("late response changed the outcome: %v", err)
	}

	// Resolved calls can no longer expire.
	call, err = r.Go("fast", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	peer.send(t, `{"jsonrpc":"2.0","id":%s,"result":2}`, peer.next(t).ID)
	if _, err := waitCall(t, call); err != nil {
		t.Fatal(err)
	}
	if r.Expire(call, nil) {
		t.Error("resolved call was expired")
	}
}

func TestRemoteExpirePending(t *testing.T) {
	r, peer := pipeRemote(nil)
	defer r.Close()
	now := time.Unix(1000, 0)
	r.pending.now = func() time.Time { return now }

	old, err := r.Go("old", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	peer.next(t)
	now = now.Add(time.Minute)
	recent, err := r.Go("recent", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	peer.next(t)

	if got, want := r.ExpirePending(30*time.Second), 1; got != want {
		t.Errorf("got expired: %d; want: %d", got, want)
	}
	if _, err := waitCall(t, old); err != ErrCallExpired {
		t.Errorf("got: %v; want: %v", err, ErrCallExpired)
	}
	select {
	case <-recent.Done():
		t.Error("recent call was expired")
	default:
	}
	if got := r.Pending(); got != 1 {
		t.Errorf("got pending: %d; want: 1", got)
	}
}

func TestRemoteInvokeContext(t *testing.T) {
	r, _ := pipeRemote(nil)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Invoke(ctx, "slow", nil, nil)
	if err != context.DeadlineExceeded {
		t.Errorf("got: %v; want: %v", err, context.DeadlineExceeded)
	}
	if got := r.Pending(); got != 0 {
		t.Errorf("expired call still pending: %d", got)
	}
}

func TestRemotePendingLimit(t *testing.T) {
	c1, c2 := net.Pipe()
	r := &Remote{
		Transport:      Attach(IOCodec(c1)),
		PendingLimit:   5,
		PendingDiscard: 3,
	}
	r.pending.now = fakeClock()
	r.Start()
	defer r.Close()
	peer := newRawPeer(c2)

	var calls []*Call
	for i := 0; i < 6; i++ {
		call, err := r.Go("noop", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		peer.next(t)
		calls = append(calls, call)
	}

	for i, call := range calls[:3] {
		if _, err := waitCall(t, call); err != ErrCallEvicted {
			t.Errorf("call %d: got: %v; want: %v", i, err, ErrCallEvicted)
		}
	}
	if got, want := r.Pending(), 3; got != want {
		t.Errorf("got pending: %d; want: %d", got, want)
	}
}

func TestRemoteClose(t *testing.T) {
	r, peer := pipeRemote(nil)

	call, err := r.Go("sum", []int{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	peer.next(t)

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := waitCall(t, call); err != ErrClosed {
		t.Errorf("got: %v; want: %v", err, ErrClosed)
	}
	if err := r.Wait(); err != nil {
		t.Errorf("serve returned an error after close: %v", err)
	}
	if got, want := r.State(), Closing; got != want {
		t.Errorf("got state: %s; want: %s", got, want)
	}
	if _, err := r.Go("sum", []int{1, 2}, nil); err != ErrClosed {
		t.Errorf("got: %v; want: %v", err, ErrClosed)
	}
	if err := r.Event("tick", nil, nil); err != ErrClosed {
		t.Errorf("got: %v; want: %v", err, ErrClosed)
	}
	if got := r.Pending(); got != 0 {
		t.Errorf("got pending: %d; want: 0", got)
	}
}

func TestRemotePeerHangup(t *testing.T) {
	r, peer := pipeRemote(nil)

	call, err := r.Go("sum", []int{1, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	peer.next(t)
	peer.Close()

	// The passive transport never reconnects, Serve ends with the read error.
	if err := r.Wait(); err == nil {
		t.Error("expected a read error")
	}
	if got, want := r.State(), Disconnected; got != want {
		t.Errorf("got state: %s; want: %s", got, want)
	}
	// Transport loss alone does not reject pending calls.
	select {
	case <-call.Done():
		t.Error("call completed on hangup")
	default:
	}

	r.Close()
	if _, err := waitCall(t, call); err != ErrClosed {
		t.Errorf("got: %v; want: %v", err, ErrClosed)
	}
}
