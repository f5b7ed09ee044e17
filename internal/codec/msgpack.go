package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack is the compact binary codec.
type MsgPack struct{}

func (MsgPack) Name() string { return NameMsgPack }
func (MsgPack) Binary() bool { return true }

func (MsgPack) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	// Struct tags are shared with JSON so both codecs agree on field names.
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgPack) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
