package jsonrpc2

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()
var typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
var typeOfExtensions = reflect.TypeOf(Extensions(nil))

// argKind says where a method argument comes from.
type argKind int

const (
	argParam argKind = iota
	argContext
	argExtensions
)

// methodArgs returns the source of each argument (receiver excluded), the
// types of the positional params, and whether all the types are valid
// (exported or builtin).
func methodArgs(methodType reflect.Type) (layout []argKind, paramTypes []reflect.Type, ok bool) {
	argNum := methodType.NumIn()
	layout = make([]argKind, 0, argNum-1)
	for argPos := 1; argPos < argNum; argPos++ { // Skip receiver
		argType := methodType.In(argPos)
		switch argType {
		case typeOfContext:
			layout = append(layout, argContext)
			continue
		case typeOfExtensions:
			layout = append(layout, argExtensions)
			continue
		}
		if !isExportedOrBuiltin(argType) {
			return nil, nil, false
		}
		layout = append(layout, argParam)
		paramTypes = append(paramTypes, argType)
	}
	return layout, paramTypes, true
}

// methodErrPos returns the return value index position of an error type for
// supported return layouts: (), (interface{}), (error), (interface{}, error)
func methodErrPos(methodType reflect.Type) (int, bool) {
	switch methodType.NumOut() {
	case 0:
		return -1, true
	case 1:
		if methodType.Out(0) == typeOfError {
			return 0, true
		}
		return -1, true
	case 2:
		if methodType.Out(1) == typeOfError {
			return 1, true
		}
	}
	return -1, false
}

func newMethod(receiver reflect.Value, method reflect.Method) (*Method, error) {
	layout, paramTypes, ok := methodArgs(method.Type)
	if !ok {
		return nil, fmt.Errorf("method has unexported argument types: %s", method.Name)
	}
	errPos, ok := methodErrPos(method.Type)
	if !ok {
		return nil, fmt.Errorf("unsupported return values in method: %s", method.Name)
	}
	return &Method{
		Receiver: receiver,
		Method:   method,
		ArgTypes: paramTypes,
		ErrPos:   errPos,
		layout:   layout,
	}, nil
}

// Methods returns a mapping of valid method names to Method definitions for
// an instance's receiver. Methods with unexported argument types are skipped.
func Methods(receiver interface{}) (map[string]*Method, error) {
	kind := reflect.TypeOf(receiver)
	val := reflect.ValueOf(receiver)
	if name := reflect.Indirect(val).Type().Name(); !isExported(name) {
		return nil, fmt.Errorf("receiver must be exported: %s", name)
	}

	methods := map[string]*Method{}
	for i := 0; i < kind.NumMethod(); i++ {
		method := kind.Method(i)
		if method.PkgPath != "" {
			continue
		}
		if _, _, ok := methodArgs(method.Type); !ok {
			continue
		}
		m, err := newMethod(val, method)
		if err != nil {
			return nil, err
		}
		methods[method.Name] = m
	}
	return methods, nil
}

// MethodByName returns the Method definition of a single receiver method.
func MethodByName(receiver interface{}, name string) (*Method, error) {
	val := reflect.ValueOf(receiver)
	method, ok := reflect.TypeOf(receiver).MethodByName(name)
	if !ok || method.PkgPath != "" {
		return nil, fmt.Errorf("method not found: %s", name)
	}
	return newMethod(val, method)
}

// Method is the definition of a callable method. Arguments of type
// context.Context and Extensions are injected, every other argument is
// filled from positional params.
type Method struct {
	Receiver reflect.Value
	Method   reflect.Method
	ArgTypes []reflect.Type
	ErrPos   int

	layout []argKind
}

// CallJSON wraps Call but supports JSON-encoded positional params.
func (m *Method) CallJSON(ctx context.Context, rawParams json.RawMessage, ext Extensions) (interface{}, error) {
	args, err := parsePositionalArguments(rawParams, m.ArgTypes)
	if err != nil {
		return nil, InvalidParamsError{err}
	}
	return m.Call(ctx, args, ext)
}

// Call executes the method with the given params.
func (m *Method) Call(ctx context.Context, params []reflect.Value, ext Extensions) (interface{}, error) {
	if len(params) != len(m.ArgTypes) {
		return nil, fmt.Errorf("invalid number of args: expected %d, got %d", len(m.ArgTypes), len(params))
	}
	if ext == nil {
		ext = Extensions{}
	}

	arguments := make([]reflect.Value, 0, len(m.layout)+1)
	arguments = append(arguments, m.Receiver)
	for _, kind := range m.layout {
		switch kind {
		case argContext:
			arguments = append(arguments, reflect.ValueOf(&ctx).Elem())
		case argExtensions:
			arguments = append(arguments, reflect.ValueOf(ext))
		default:
			arguments = append(arguments, params[0])
			params = params[1:]
		}
	}

	reply := m.Method.Func.Call(arguments)
	if len(reply) == 0 {
		return nil, nil
	}
	if m.ErrPos >= 0 && !reply[m.ErrPos].IsNil() {
		return nil, reply[m.ErrPos].Interface().(error)
	}
	if m.ErrPos == 0 {
		// Only an error was returned, and it was nil.
		return nil, nil
	}
	return reply[0].Interface(), nil
}

// InvalidParamsError is returned when params do not fit a method's
// signature.
type InvalidParamsError struct {
	Err error
}

func (err InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params: %s", err.Err)
}

func (err InvalidParamsError) Cause() error {
	return err.Err
}
