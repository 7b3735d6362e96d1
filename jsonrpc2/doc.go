/*
	Package jsonrpc2 implements bidirectional JSONRPC 2.0 over a persistent
	connection. Batches are not supported.

	Remote is one side of a connection. It sends calls (Go, Invoke, Call) and
	correlates their responses by ID, sends one-way events, and hands calls
	and events received from the peer to its Handler. The Handler answers
	calls whenever it is ready with IncomingCall.Reply or IncomingCall.Fail.

	Messages are classified by which fields are present: id and method make a
	call, id alone a response (a failure if it has an error), method alone an
	event. Anything else is dropped. Top-level fields outside of the JSON-RPC
	vocabulary are Extensions and are carried opaquely in both directions.

	Transport owns the connection. Reconnector dials a URL and redials after
	every disconnect; Attach wraps a connection that is already established
	and never redials. Sends made while the transport is not open are retried
	in the background until it is.

	Codec is the encoding over one connection. Once a Codec is established,
	it does not care which side initiated the connection. The ws/gorilla and
	ws/gobwas subpackages provide websocket codecs and dialers.

	Server is a method registry that can be used as a Handler. When a Server
	method receives a call, its context contains a service value that can be
	acquired with CtxService(ctx). The service can be used to send calls back
	to the caller.
*/
package jsonrpc2
