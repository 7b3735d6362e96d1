package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gobwas/ws/wsutil"
	"github.com/gorilla/websocket"
	"github.com/vipnode/wsrpc/internal/pretty"
	"github.com/vipnode/wsrpc/jsonrpc2"
	"github.com/vipnode/wsrpc/jsonrpc2/ws"
)

// server accepts websocket connections and serves each one as a passive
// remote, with the same handler for every peer.
type server struct {
	handler  jsonrpc2.Handler
	ws       ws.Upgrader
	debugLog bool
	header   http.Header
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
		return
	}
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		http.Error(w, "expected a websocket handshake", http.StatusBadRequest)
		return
	}
	codec, err := s.ws.Upgrade(r, w, s.header)
	if err != nil {
		logger.Debugf("websocket upgrade error from %s: %s", r.RemoteAddr, err)
		return
	}
	if s.debugLog {
		codec = jsonrpc2.DebugCodec(r.RemoteAddr, codec)
	}
	remote := &jsonrpc2.Remote{
		Transport: jsonrpc2.Attach(codec),
		Handler:   s.handler,

		PendingLimit:   50,
		PendingDiscard: 10,
	}
	logger.Infof("Peer connected: %s", r.RemoteAddr)
	if err := remote.Serve(); err != nil && !isClosed(err) {
		logger.Warningf("jsonrpc2.Remote.Serve() error: %s", err)
	}
	remote.Close()
	logger.Infof("Peer disconnected: %s", r.RemoteAddr)
}

// isClosed reports whether err is a regular end of a websocket connection.
func isClosed(err error) bool {
	if err == io.EOF {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	var closedErr wsutil.ClosedError
	return errors.As(err, &closedErr)
}

// serveHandler answers calls with the registered methods and logs every
// event it receives.
type serveHandler struct {
	*jsonrpc2.Server
}

func (h serveHandler) HandleCall(ctx context.Context, call *jsonrpc2.IncomingCall) {
	logger.Debugf("Call %s (id %s): %s", call.Method, call.ID, pretty.Payload(call.Params))
	h.Server.HandleCall(ctx, call)
}

func (h serveHandler) HandleEvent(ctx context.Context, event *jsonrpc2.Event) {
	logger.Infof("Event %s: %s %s", event.Name, pretty.Payload(event.Data), extensionsString(event.Extensions))
	h.Server.HandleEvent(ctx, event)
}

func extensionsString(ext jsonrpc2.Extensions) string {
	if len(ext) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ext))
	for k := range ext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+string(ext[k]))
	}
	return strings.Join(pairs, " ")
}
