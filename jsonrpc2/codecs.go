package jsonrpc2

import (
	"encoding/json"
	"io"
	"sync"
)

// Codec is an abstraction for receiving and sending JSONRPC messages over one
// underlying connection.
type Codec interface {
	ReadMessage() (*Message, error)
	WriteMessage(*Message) error
	Close() error
}

var _ Codec = &jsonCodec{}

// IOCodec returns a Codec that wraps JSON encoding and decoding over IO.
// Messages are newline-delimited on the wire.
func IOCodec(rwc io.ReadWriteCloser) *jsonCodec {
	return &jsonCodec{
		decoder: json.NewDecoder(rwc),
		encoder: json.NewEncoder(rwc),
		closer:  rwc,
	}
}

type jsonCodec struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	decoder *json.Decoder
	encoder *json.Encoder
	closer  io.Closer
}

func (codec *jsonCodec) ReadMessage() (*Message, error) {
	codec.muRead.Lock()
	defer codec.muRead.Unlock()

	// Decode into a raw value first so that a frame which is valid JSON but
	// not a message does not desync the stream.
	var raw json.RawMessage
	if err := codec.decoder.Decode(&raw); err != nil {
		return nil, err
	}
	return DecodeMessage(raw)
}

func (codec *jsonCodec) WriteMessage(msg *Message) error {
	codec.muWrite.Lock()
	defer codec.muWrite.Unlock()
	return codec.encoder.Encode(msg)
}

func (codec *jsonCodec) Close() error {
	if codec.closer == nil {
		return nil
	}
	return codec.closer.Close()
}

// DebugCodec wraps a codec and logs every message that passes through it,
// using label to tell connections apart.
func DebugCodec(label string, codec Codec) Codec {
	return &debugCodec{Codec: codec, label: label}
}

type debugCodec struct {
	Codec
	label string
}

func (codec *debugCodec) ReadMessage() (*Message, error) {
	msg, err := codec.Codec.ReadMessage()
	if err != nil {
		logger.Printf("%s <- error: %s", codec.label, err)
		return msg, err
	}
	logger.Printf("%s <- %s", codec.label, msg)
	return msg, nil
}

func (codec *debugCodec) WriteMessage(msg *Message) error {
	logger.Printf("%s -> %s", codec.label, msg)
	return codec.Codec.WriteMessage(msg)
}
