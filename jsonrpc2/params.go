package jsonrpc2

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// parsePositionalArguments decodes the params of a JSONRPC message into
// values of the given types, one per array element. Only positional (array)
// params are supported.
func parsePositionalArguments(rawParams json.RawMessage, types []reflect.Type) ([]reflect.Value, error) {
	if len(rawParams) == 0 || string(rawParams) == "null" {
		if len(types) > 0 {
			return nil, fmt.Errorf("missing params: expected %d", len(types))
		}
		return nil, nil
	}
	if !isArray(rawParams) {
		return nil, errors.New("params must be an array")
	}

	var args []json.RawMessage
	if err := json.Unmarshal(rawParams, &args); err != nil {
		return nil, err
	}
	if len(args) > len(types) {
		return nil, fmt.Errorf("too many params: expected %d, got %d", len(types), len(args))
	}
	if len(args) < len(types) {
		return nil, fmt.Errorf("not enough params: expected %d, got %d", len(types), len(args))
	}

	values := make([]reflect.Value, 0, len(types))
	for i, arg := range args {
		value := reflect.New(types[i])
		if err := json.Unmarshal(arg, value.Interface()); err != nil {
			return nil, fmt.Errorf("param %d: %s", i, err)
		}
		values = append(values, value.Elem())
	}
	return values, nil
}
