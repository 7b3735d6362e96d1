package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/vipnode/wsrpc/jsonrpc2"
	"github.com/vipnode/wsrpc/jsonrpc2/ws/gobwas"
	"github.com/vipnode/wsrpc/jsonrpc2/ws/gorilla"
)

// Version of the binary, assigned during build.
var Version string = "dev"

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool   `long:"version" description:"Print version and exit."`
	Config  string `long:"config" description:"Path to an ini config file. (Default: $XDG_CONFIG_HOME/vipnode/wsrpc/wsrpc.ini)"`

	Serve struct {
		Bind        string `long:"bind" description:"Address and port to listen on." default:"127.0.0.1:8080"`
		WS          string `long:"ws" description:"Websocket implementation. (gorilla|gobwas)" default:"gorilla"`
		Delay       string `long:"delay" description:"Wait this long before answering each call." default:"0s"`
		AllowOrigin string `long:"allow-origin" description:"Access-Control-Allow-Origin header value."`
	} `command:"serve" description:"Serve sum and echo over websocket JSON-RPC."`

	Call struct {
		Args struct {
			URL    string `positional-arg-name:"url" description:"Websocket URL of the peer." required:"yes"`
			Method string `positional-arg-name:"method" description:"Method to call." required:"yes"`
			Params string `positional-arg-name:"params" description:"JSON params, a bare value is sent as a one-element array."`
		} `positional-args:"yes"`
		Ext     []string `long:"ext" description:"Extension field to send, as key=json. Can be repeated."`
		WS      string   `long:"ws" description:"Websocket implementation. (gorilla|gobwas)" default:"gorilla"`
		Timeout string   `long:"timeout" description:"Give up waiting for the response after this long." default:"10s"`
		IDs     string   `long:"ids" description:"Call ID format. (counter|uuid)" default:"counter"`
		Retries uint64   `long:"retries" description:"Give up after this many failed connection attempts. (Default: retry until --timeout)"`
	} `command:"call" description:"Call a method on a websocket JSON-RPC peer and print the response."`

	Event struct {
		Args struct {
			URL  string `positional-arg-name:"url" description:"Websocket URL of the peer." required:"yes"`
			Name string `positional-arg-name:"name" description:"Event name." required:"yes"`
			Data string `positional-arg-name:"data" description:"JSON data, a bare value is sent as a one-element array."`
		} `positional-args:"yes"`
		Ext     []string `long:"ext" description:"Extension field to send, as key=json. Can be repeated."`
		WS      string   `long:"ws" description:"Websocket implementation. (gorilla|gobwas)" default:"gorilla"`
		Timeout string   `long:"timeout" description:"Give up connecting after this long." default:"10s"`
		Retries uint64   `long:"retries" description:"Give up after this many failed connection attempts. (Default: retry until --timeout)"`
	} `command:"event" description:"Send a one-way event to a websocket JSON-RPC peer."`
}

const callUsage = `Examples:
* Call sum on a local wsrpc server:
  $ wsrpc call ws://127.0.0.1:8080/ sum '[1, 2]'

* Send an extension field along with the call:
  $ wsrpc call ws://127.0.0.1:8080/ sum '[3, 2]' --ext foo='"bar"'
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

// findConfig returns the ini file to load defaults from, or "" if there is
// none. An explicit --config wins over the XDG config location.
func findConfig(args []string) string {
	var pre struct {
		Config string `long:"config"`
	}
	preParser := flags.NewParser(&pre, flags.IgnoreUnknown)
	preParser.ParseArgs(args)
	if pre.Config != "" {
		return pre.Config
	}
	return xdg.New("vipnode", "wsrpc").QueryConfig("wsrpc.ini")
}

// findDialer returns the websocket client implementation by name.
func findDialer(name string) (jsonrpc2.Dialer, error) {
	switch name {
	case "", "gorilla":
		return gorilla.WebSocketDial, nil
	case "gobwas":
		return gobwas.WebSocketDial, nil
	}
	return nil, ErrExplain{
		fmt.Errorf("unknown websocket implementation: %q", name),
		`Use --ws=gorilla or --ws=gobwas.`,
	}
}

func subcommand(cmd string, options Options) error {
	switch cmd {
	case "serve":
		return runServe(options)
	case "call":
		return runCall(options, os.Stdout)
	case "event":
		return runEvent(options)
	}
	return ErrExplain{
		errors.New("missing command"),
		`Run with --help to see the available commands.`,
	}
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true
	if configPath := findConfig(os.Args[1:]); configPath != "" {
		if err := flags.NewIniParser(parser).ParseFile(configPath); err != nil {
			exit(1, "failed to load config %q: %s\n", configPath, err)
		}
	}
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "call":
				exit(0, callUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		// Enable logging from subpackages
		jsonrpc2.SetLogger(logWriter)
	}

	cmd := ""
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = subcommand(cmd, options)
	if err == nil {
		return
	}

	if err == io.EOF {
		exit(3, "Connection closed.\n")
	}

	switch err {
	case context.DeadlineExceeded:
		err = ErrExplainRetry{ErrExplain{err, `No response before --timeout. The call was dropped, a late response will be ignored.`}}
	case jsonrpc2.ErrRetryLimit:
		err = ErrExplainRetry{ErrExplain{err, `Could not connect to the peer. Make sure the URL is correct and the peer is up.`}}
	}

	switch typedErr := err.(type) {
	case ErrExplain, ErrExplainRetry:
		// All good.
	case net.Error:
		err = ErrExplainRetry{ErrExplain{err, `Disconnected from the peer unexpectedly. Could be a connectivity issue or the peer is down. Try again?`}}
	case interface{ ErrorCode() int }:
		switch typedErr.ErrorCode() {
		case jsonrpc2.ErrCodeMethodNotFound:
			err = ErrExplain{err, `The peer does not provide this method.`}
		case jsonrpc2.ErrCodeInvalidParams:
			err = ErrExplain{err, `The peer rejected the params. Params are positional, try a JSON array like '[1, 2]'.`}
		default:
			err = ErrExplain{err, fmt.Sprintf(`The peer answered with an error (code %d).`, typedErr.ErrorCode())}
		}
	default:
		err = ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation. Please open an issue at https://github.com/vipnode/wsrpc`, err)}
	}

	if _, ok := err.(ErrExplainRetry); ok {
		exit(4, "%s failed: %s\n", cmd, err)
	}
	exit(2, "%s failed: %s\n", cmd, err)
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}

// ErrExplainRetry is an ErrExplain for failures that may go away when the
// command is run again.
type ErrExplainRetry struct {
	ErrExplain
}
