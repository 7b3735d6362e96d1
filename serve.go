package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/vipnode/wsrpc/jsonrpc2"
	"github.com/vipnode/wsrpc/jsonrpc2/ws"
	"github.com/vipnode/wsrpc/jsonrpc2/ws/gobwas"
	"github.com/vipnode/wsrpc/jsonrpc2/ws/gorilla"
	"golang.org/x/sync/errgroup"
)

// Calculator is the service answered by `wsrpc serve`.
type Calculator struct {
	// Delay holds back every answer, like a slow peer would.
	Delay time.Duration
}

func (c *Calculator) Sum(ctx context.Context, a, b float64) (float64, error) {
	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return a + b, nil
}

func (c *Calculator) Echo(value json.RawMessage) json.RawMessage {
	return value
}

// findUpgrader returns the websocket server implementation by name.
func findUpgrader(name string) (ws.Upgrader, error) {
	switch name {
	case "", "gorilla":
		return &gorilla.Upgrader{}, nil
	case "gobwas":
		return &gobwas.Upgrader{}, nil
	}
	return nil, ErrExplain{
		fmt.Errorf("unknown websocket implementation: %q", name),
		`Use --ws=gorilla or --ws=gobwas.`,
	}
}

// newServeHandler builds the websocket handler for the serve command.
func newServeHandler(options Options) (http.Handler, error) {
	delay, err := time.ParseDuration(options.Serve.Delay)
	if err != nil {
		return nil, ErrExplain{err, `Failed to parse the --delay value. Try using a value like "1s" or "250ms".`}
	}
	upgrader, err := findUpgrader(options.Serve.WS)
	if err != nil {
		return nil, err
	}

	rpc := &jsonrpc2.Server{}
	if err := rpc.Register("", &Calculator{Delay: delay}); err != nil {
		return nil, err
	}
	handler := &server{
		handler:  serveHandler{rpc},
		ws:       upgrader,
		debugLog: len(options.Verbose) >= len(logLevels)-1,
		header:   http.Header{},
	}
	if options.Serve.AllowOrigin != "" {
		handler.header.Set("Access-Control-Allow-Origin", options.Serve.AllowOrigin)
	}
	return handler, nil
}

func runServe(options Options) error {
	handler, err := newServeHandler(options)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:    options.Serve.Bind,
		Handler: handler,
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		logger.Infof("Starting wsrpc server (version %s), listening on: ws://%s", Version, options.Serve.Bind)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Shut down on ctrl+c signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("Shutting down...")
		case <-ctx.Done():
		}
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}
