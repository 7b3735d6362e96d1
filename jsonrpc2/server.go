package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode"
)

var _ Handler = &Server{}

// Server is a method registry. As a Handler, it answers incoming calls by
// invoking the registered method of the same name, and invokes registered
// methods for incoming events, discarding their results.
type Server struct {
	mu       sync.RWMutex
	registry map[string]*Method
}

// Register adds valid methods from the receiver to the registry with the given
// prefix. Method names are lowercased.
func (s *Server) Register(prefix string, receiver interface{}) error {
	methods, err := Methods(receiver)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry == nil {
		s.registry = map[string]*Method{}
	}
	var buf bytes.Buffer
	for name, m := range methods {
		buf.WriteString(prefix)
		buf.WriteRune(unicode.ToLower(rune(name[0])))
		buf.WriteString(name[1:])
		s.registry[buf.String()] = m
		buf.Reset()
	}
	return nil
}

// RegisterMethod adds a single receiver method under an explicit name.
func (s *Server) RegisterMethod(name string, receiver interface{}, methodName string) error {
	m, err := MethodByName(receiver, methodName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry == nil {
		s.registry = map[string]*Method{}
	}
	s.registry[name] = m
	return nil
}

func (s *Server) lookup(name string) (*Method, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.registry[name]
	return m, ok
}

// Handle invokes the method for a call and returns its JSON-encoded result,
// or the error response to send back.
func (s *Server) Handle(ctx context.Context, call *IncomingCall) (json.RawMessage, *ErrResponse) {
	m, ok := s.lookup(call.Method)
	if !ok {
		return nil, methodNotFound(call.Method)
	}
	res, err := m.CallJSON(ctx, call.Params, call.Extensions)
	var paramsErr InvalidParamsError
	if errors.As(err, &paramsErr) {
		return nil, &ErrResponse{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("invalid params: %s", call.Params),
		}
	}
	if err != nil {
		var errResp *ErrResponse
		if errors.As(err, &errResp) {
			return nil, errResp
		}
		return nil, &ErrResponse{
			Code:    ErrCodeInternal,
			Message: err.Error(),
		}
	}
	result, err := json.Marshal(res)
	if err != nil {
		return nil, &ErrResponse{
			Code:    ErrCodeServer,
			Message: fmt.Sprintf("failed to encode response: %s", err),
		}
	}
	return result, nil
}

// HandleCall answers the call from a new goroutine, so that methods can make
// calls of their own over the same connection.
func (s *Server) HandleCall(ctx context.Context, call *IncomingCall) {
	go func() {
		result, errResp := s.Handle(ctx, call)
		var err error
		if errResp != nil {
			err = call.Fail(errResp, nil)
		} else {
			err = call.Reply(result, nil)
		}
		if err != nil {
			logger.Printf("Failed to answer %s call %s: %s", call.Method, call.ID, err)
		}
	}()
}

func (s *Server) HandleEvent(ctx context.Context, event *Event) {
	m, ok := s.lookup(event.Name)
	if !ok {
		logger.Printf("Ignoring unregistered event: %s", event.Name)
		return
	}
	go func() {
		if _, err := m.CallJSON(ctx, event.Data, event.Extensions); err != nil {
			logger.Printf("Event %s failed: %s", event.Name, err)
		}
	}()
}
