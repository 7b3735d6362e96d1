package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

// Extensions are top-level message fields outside of the JSON-RPC vocabulary,
// such as tracing or routing metadata. They ride along with calls, events and
// responses in both directions.
type Extensions map[string]json.RawMessage

// Ext builds Extensions from alternating key/value pairs, encoding each value
// as JSON.
func Ext(keyvals ...interface{}) (Extensions, error) {
	if len(keyvals)%2 != 0 {
		return nil, fmt.Errorf("odd number of extension arguments: %d", len(keyvals))
	}
	ext := make(Extensions, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			return nil, fmt.Errorf("extension key must be a string: %v", keyvals[i])
		}
		if err := ext.Set(key, keyvals[i+1]); err != nil {
			return nil, err
		}
	}
	return ext, nil
}

// Set encodes value and stores it under key.
func (ext Extensions) Set(key string, value interface{}) error {
	raw, ok := value.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(value); err != nil {
			return fmt.Errorf("failed to encode extension %q: %s", key, err)
		}
	}
	ext[key] = raw
	return nil
}

// Get decodes the value stored under key into v. It returns false if the key
// is not present.
func (ext Extensions) Get(key string, v interface{}) (bool, error) {
	raw, ok := ext[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// clone returns a non-nil copy.
func (ext Extensions) clone() Extensions {
	out := make(Extensions, len(ext))
	for k, v := range ext {
		out[k] = v
	}
	return out
}
