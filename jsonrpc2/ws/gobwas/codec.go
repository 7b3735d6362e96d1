package gobwas

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vipnode/wsrpc/jsonrpc2"
	wsupgrader "github.com/vipnode/wsrpc/jsonrpc2/ws"
)

type rwc struct {
	io.Reader
	io.Writer
	io.Closer
}

// WebSocketDial returns a Codec that wraps a client-side connection with JSON
// encoding and decoding. It satisfies jsonrpc2.Dialer.
func WebSocketDial(ctx context.Context, url string) (jsonrpc2.Codec, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return clientWebSocketCodec(conn, br), nil
}

// clientWebSocketCodec wraps the client side of a connection. br holds any
// bytes the server sent right after the handshake, it may be nil.
func clientWebSocketCodec(conn net.Conn, br *bufio.Reader) jsonrpc2.Codec {
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return &wsCodec{
		rw:    rwc{r, conn, conn},
		state: ws.StateClientSide,
	}
}

// serverWebSocketCodec returns a server-side Codec that wraps JSON encoding and
// decoding over a websocket connection.
func serverWebSocketCodec(conn net.Conn, r io.Reader) jsonrpc2.Codec {
	if r == nil {
		r = conn
	}
	return &wsCodec{
		rw:    rwc{r, conn, conn},
		state: ws.StateServerSide,
	}
}

var _ jsonrpc2.Codec = &wsCodec{}

type wsCodec struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	rw      rwc
	state   ws.State
}

func (codec *wsCodec) ReadMessage() (*jsonrpc2.Message, error) {
	codec.muRead.Lock()
	var data []byte
	var err error
	if codec.state == ws.StateClientSide {
		data, _, err = wsutil.ReadServerData(codec)
	} else {
		data, _, err = wsutil.ReadClientData(codec)
	}
	codec.muRead.Unlock()
	if err != nil {
		return nil, err
	}
	return jsonrpc2.DecodeMessage(data)
}

// Read and Write let wsutil answer control frames (ping, close) while
// reading. Writes share the write lock with WriteMessage.
func (codec *wsCodec) Read(p []byte) (int, error) {
	return codec.rw.Read(p)
}

func (codec *wsCodec) Write(p []byte) (int, error) {
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	return codec.rw.Write(p)
}

func (codec *wsCodec) WriteMessage(msg *jsonrpc2.Message) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	if codec.state == ws.StateClientSide {
		return wsutil.WriteClientMessage(codec.rw, ws.OpText, data)
	}
	return wsutil.WriteServerMessage(codec.rw, ws.OpText, data)
}

func (codec *wsCodec) Close() error {
	return codec.rw.Close()
}

var _ wsupgrader.Upgrader = &Upgrader{}

// Upgrader upgrades an HTTP request to a WebSocket request and returns the
// appropriate jsonrpc2 codec.
type Upgrader struct {
	Upgrader ws.HTTPUpgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (jsonrpc2.Codec, error) {
	upgrader := u.Upgrader
	if h != nil {
		upgrader.Header = h
	}
	conn, rw, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	var br io.Reader
	if rw != nil {
		br = rw.Reader
	}
	return serverWebSocketCodec(conn, br), nil
}
