package main

import (
	"context"

	"github.com/vipnode/wsrpc/jsonrpc2"
)

// sentTransport signals after every message that was written to the
// connection.
type sentTransport struct {
	jsonrpc2.Transport
	sent chan struct{}
}

func (t *sentTransport) WriteMessage(msg *jsonrpc2.Message) error {
	if err := t.Transport.WriteMessage(msg); err != nil {
		return err
	}
	select {
	case t.sent <- struct{}{}:
	default:
	}
	return nil
}

func runEvent(options Options) error {
	dial, err := findDialer(options.Event.WS)
	if err != nil {
		return err
	}
	timeout, err := parseTimeout(options.Event.Timeout)
	if err != nil {
		return err
	}
	data, err := parseParams(options.Event.Args.Data)
	if err != nil {
		return err
	}
	ext, err := parseExtensions(options.Event.Ext)
	if err != nil {
		return err
	}

	url, name := options.Event.Args.URL, options.Event.Args.Name
	logger.Infof("Connecting to: %s", url)
	transport := &sentTransport{
		Transport: newReconnector(url, dial, options.Event.Retries),
		sent:      make(chan struct{}, 1),
	}
	remote := &jsonrpc2.Remote{Transport: transport}
	remote.Start()
	defer remote.Close()
	stopped := serveErr(remote)

	// The event is deferred until the connection is open.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := remote.Event(name, data, ext); err != nil {
		return err
	}
	select {
	case <-transport.sent:
		logger.Infof("Sent event: %s", name)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case err := <-stopped:
		return err
	}
}
