package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// SerializeType identifies the codec used for request, reply, and stream
// message bodies. It is carried on the wire in every request frame.
type SerializeType byte

const (
	// SerializeMsgpack is the default body codec.
	SerializeMsgpack SerializeType = 1
	// SerializeJSON encodes bodies as JSON.
	SerializeJSON SerializeType = 2
)

// Codec defines the interface that decodes/encodes message bodies.
type Codec interface {
	Encode(any) ([]byte, error)
	Decode([]byte, any) error
	String() string
}

var (
	codecs     = make(map[SerializeType]Codec)
	codecNames = make(map[string]SerializeType)
)

func init() {
	RegisterCodec(SerializeMsgpack, msgpackCodec{})
	RegisterCodec(SerializeJSON, jsonCodec{})
}

// RegisterCodec registers a customized codec under the given serialize type.
func RegisterCodec(st SerializeType, codec Codec) {
	codecs[st] = codec
	codecNames[strings.ToLower(codec.String())] = st
}

// LookupCodec returns the codec registered for the serialize type, or nil.
func LookupCodec(st SerializeType) Codec {
	return codecs[st]
}

// CodecByName resolves a codec by its name, e.g. from configuration.
func CodecByName(name string) (SerializeType, Codec, error) {
	st, ok := codecNames[strings.ToLower(name)]
	if !ok {
		return 0, nil, fmt.Errorf("unknown codec %q", name)
	}
	return st, codecs[st], nil
}

// msgpackCodec uses messagepack marshaler and unmarshaler.
type msgpackCodec struct{}

func (msgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (msgpackCodec) String() string { return "msgpack" }

type jsonCodec struct{}

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) String() string { return "json" }
