// Package codec holds the serialization strategies used for broadcast
// payloads and stored blobs.
package codec

import (
	"fmt"
)

// Codec encodes values for the wire and the store.
type Codec interface {
	Name() string
	// Binary reports whether encoded payloads must travel as binary frames.
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Names accepted by New.
const (
	NameJSON    = "json"
	NameMsgPack = "msgpack"
)

// New returns the codec registered under name.
func New(name string) (Codec, error) {
	switch name {
	case "", NameJSON:
		return JSON{}, nil
	case NameMsgPack:
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
