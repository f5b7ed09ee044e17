package codec

import "encoding/json"

// JSON is the text codec.
type JSON struct{}

func (JSON) Name() string                       { return NameJSON }
func (JSON) Binary() bool                       { return false }
func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
