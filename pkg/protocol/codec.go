// pkg/protocol/codec.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// ErrEmptyType is returned when a decoded envelope has no type.
var ErrEmptyType = errors.New("message has no type")

// Codec turns envelopes into websocket frames and back.
type Codec interface {
	// Name is the value clients pass to select the codec.
	Name() string
	// Binary reports whether frames go out as binary websocket messages.
	Binary() bool
	Encode(env Envelope) ([]byte, error)
	Decode(raw []byte) (Frame, error)
}

// Frame is a decoded envelope whose payload has not been unpacked yet.
type Frame struct {
	Type   MessageType
	data   []byte
	decode func([]byte, any) error
}

// Decode unpacks the payload into v. A frame without payload leaves v
// untouched.
func (f Frame) Decode(v any) error {
	if len(f.data) == 0 {
		return nil
	}
	if err := f.decode(f.data, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", f.Type, err)
	}
	return nil
}

// JSONCodec sends text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(env Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", env.Type, err)
	}
	return raw, nil
}

func (JSONCodec) Decode(raw []byte) (Frame, error) {
	var in struct {
		Type MessageType     `json:"t"`
		Data json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return Frame{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if in.Type == "" {
		return Frame{}, ErrEmptyType
	}
	data := in.Data
	if string(data) == "null" {
		data = nil
	}
	return Frame{Type: in.Type, data: data, decode: json.Unmarshal}, nil
}

// MsgpackCodec sends binary frames.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }
func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Encode(env Envelope) ([]byte, error) {
	raw, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", env.Type, err)
	}
	return raw, nil
}

func (MsgpackCodec) Decode(raw []byte) (Frame, error) {
	var in struct {
		Type MessageType        `msgpack:"t"`
		Data msgpack.RawMessage `msgpack:"d"`
	}
	if err := msgpack.Unmarshal(raw, &in); err != nil {
		return Frame{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if in.Type == "" {
		return Frame{}, ErrEmptyType
	}
	return Frame{Type: in.Type, data: in.Data, decode: msgpack.Unmarshal}, nil
}

// CodecByName resolves a client's codec choice. The empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
