package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vipnode/wsrpc/jsonrpc2"
)

// parseParams parses a JSON command line argument. An empty argument means
// no params at all.
func parseParams(arg string) (interface{}, error) {
	if arg == "" {
		return nil, nil
	}
	if !json.Valid([]byte(arg)) {
		return nil, ErrExplain{
			fmt.Errorf("invalid JSON: %s", arg),
			`Params must be JSON, like '[1, 2]' or '"hello"'. Remember to quote them for your shell.`,
		}
	}
	return json.RawMessage(arg), nil
}

// parseExtensions parses key=value pairs. Values that are not valid JSON are
// sent as strings.
func parseExtensions(pairs []string) (jsonrpc2.Extensions, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	ext := make(jsonrpc2.Extensions, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, ErrExplain{
				fmt.Errorf("invalid extension: %q", pair),
				`Extensions are passed as key=value, like --ext trace='"abc"'.`,
			}
		}
		key, value := parts[0], parts[1]
		var err error
		if json.Valid([]byte(value)) {
			err = ext.Set(key, json.RawMessage(value))
		} else {
			err = ext.Set(key, value)
		}
		if err != nil {
			return nil, err
		}
	}
	return ext, nil
}

func parseTimeout(value string) (time.Duration, error) {
	timeout, err := time.ParseDuration(value)
	if err != nil {
		return 0, ErrExplain{err, `Failed to parse the --timeout value. Try using a value like "10s".`}
	}
	return timeout, nil
}

// findIDs returns the call ID generator by name.
func findIDs(name string) (jsonrpc2.IDGenerator, error) {
	switch name {
	case "", "counter":
		return &jsonrpc2.Counter{}, nil
	case "uuid":
		return jsonrpc2.UUIDGenerator{}, nil
	}
	return nil, ErrExplain{
		fmt.Errorf("unknown id format: %q", name),
		`Use --ids=counter or --ids=uuid.`,
	}
}

// newReconnector returns a transport to url that gives up after retries
// failed connection attempts, or never when retries is 0.
func newReconnector(url string, dial jsonrpc2.Dialer, retries uint64) *jsonrpc2.Reconnector {
	rc := &jsonrpc2.Reconnector{URL: url, Dial: dial}
	if retries > 0 {
		rc.Backoff = backoff.WithMaxRetries(backoff.NewConstantBackOff(jsonrpc2.DefaultRetryDelay), retries)
	}
	return rc
}

// serveErr returns a channel that receives the error of a remote that stopped
// serving. A remote that was closed cleanly reports ErrClosed.
func serveErr(remote *jsonrpc2.Remote) <-chan error {
	ch := make(chan error, 1)
	go func() {
		err := remote.Wait()
		if err == nil {
			err = jsonrpc2.ErrClosed
		}
		ch <- err
	}()
	return ch
}

// callOutput is what `wsrpc call` prints for a successful call.
type callOutput struct {
	Result     json.RawMessage     `json:"result"`
	Extensions jsonrpc2.Extensions `json:"extensions"`
}

func runCall(options Options, out io.Writer) error {
	dial, err := findDialer(options.Call.WS)
	if err != nil {
		return err
	}
	timeout, err := parseTimeout(options.Call.Timeout)
	if err != nil {
		return err
	}
	params, err := parseParams(options.Call.Args.Params)
	if err != nil {
		return err
	}
	ext, err := parseExtensions(options.Call.Ext)
	if err != nil {
		return err
	}

	ids, err := findIDs(options.Call.IDs)
	if err != nil {
		return err
	}

	url, method := options.Call.Args.URL, options.Call.Args.Method
	logger.Infof("Connecting to: %s", url)
	remote := &jsonrpc2.Remote{
		Transport: newReconnector(url, dial, options.Call.Retries),
		Client:    &jsonrpc2.Client{IDs: ids},
	}
	remote.Start()
	defer remote.Close()
	stopped := serveErr(remote)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	call, err := remote.Go(method, params, ext)
	if err != nil {
		return err
	}
	logger.Debugf("Sent call %s: %s", call.ID, method)
	select {
	case <-call.Done():
	case <-ctx.Done():
		remote.Expire(call, ctx.Err())
	case err := <-stopped:
		remote.Expire(call, err)
	}
	<-call.Done()
	reply, err := call.Result()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(callOutput{
		Result:     reply.Result,
		Extensions: reply.Extensions,
	})
}
