// Websocket implementation using Gorilla's Websocket library
package gorilla

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vipnode/wsrpc/jsonrpc2"
	"github.com/vipnode/wsrpc/jsonrpc2/ws"
)

// WebSocketDial returns a Codec that wraps a client-side connection with JSON
// encoding and decoding. It satisfies jsonrpc2.Dialer.
func WebSocketDial(ctx context.Context, url string) (jsonrpc2.Codec, error) {
	return Dialer(websocket.DefaultDialer, nil)(ctx, url)
}

// Dialer returns a jsonrpc2.Dialer that uses d and sends header with every
// handshake.
func Dialer(d *websocket.Dialer, header http.Header) jsonrpc2.Dialer {
	return func(ctx context.Context, url string) (jsonrpc2.Codec, error) {
		conn, resp, err := d.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return NewCodec(conn), nil
	}
}

// NewCodec wraps an established websocket connection. Each message is one
// text frame.
func NewCodec(conn *websocket.Conn) jsonrpc2.Codec {
	return &wsCodec{conn: conn}
}

var _ jsonrpc2.Codec = &wsCodec{}

type wsCodec struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	conn    *websocket.Conn
}

func (codec *wsCodec) ReadMessage() (*jsonrpc2.Message, error) {
	codec.muRead.Lock()
	defer codec.muRead.Unlock()
	_, data, err := codec.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return jsonrpc2.DecodeMessage(data)
}

func (codec *wsCodec) WriteMessage(msg *jsonrpc2.Message) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	return codec.conn.WriteMessage(websocket.TextMessage, data)
}

func (codec *wsCodec) Close() error {
	return codec.conn.Close()
}

var _ ws.Upgrader = &Upgrader{}

// Upgrader upgrades an HTTP request to a WebSocket connection and returns
// the appropriate jsonrpc2 codec.
type Upgrader struct {
	Upgrader websocket.Upgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (jsonrpc2.Codec, error) {
	conn, err := u.Upgrader.Upgrade(w, r, h)
	if err != nil {
		return nil, err
	}
	return NewCodec(conn), nil
}

// WebsocketHandler serves each websocket connection as a passive remote with
// the given handler, until the peer disconnects.
func WebsocketHandler(handler jsonrpc2.Handler) http.HandlerFunc {
	upgrader := &Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := upgrader.Upgrade(r, w, nil)
		if err != nil {
			log.Printf("websocket upgrade error from %s: %s", r.RemoteAddr, err)
			return
		}
		remote := jsonrpc2.Wrap(codec, handler)
		defer remote.Close()
		if err := remote.Wait(); err != nil && err != io.EOF && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Printf("jsonrpc2.Remote.Serve() error: %s", err)
		}
	}
}
