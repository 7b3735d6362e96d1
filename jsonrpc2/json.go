package jsonrpc2

import "encoding/json"

// Helpers for JSON parsing

// isArray returns true if the message is a JSON array (starts
// with '[', spaces skipped).
func isArray(raw json.RawMessage) bool {
	return firstByte(raw) == '['
}

// isObject returns true if the message is a JSON object.
func isObject(raw json.RawMessage) bool {
	return firstByte(raw) == '{'
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		if isSpace(b) {
			continue
		}
		return b
	}
	return 0
}

// isSpace returns true if the byte is considered a space in JSON syntax.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// positionalParams encodes params as a JSON array. A value that does not
// encode to an array is wrapped into a one-element array. nil stays nil so
// the params key is omitted.
func positionalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, ok := params.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return nil, err
		}
	} else if len(raw) == 0 {
		return nil, nil
	}
	if isArray(raw) {
		return raw, nil
	}
	wrapped := make(json.RawMessage, 0, len(raw)+2)
	wrapped = append(wrapped, '[')
	wrapped = append(wrapped, raw...)
	wrapped = append(wrapped, ']')
	return wrapped, nil
}
