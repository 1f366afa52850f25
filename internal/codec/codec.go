// Package codec abstracts the encoding used for human-facing output.
package codec

import "encoding/json"

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec renders indented JSON, suitable for terminal output.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.MarshalIndent(v, "", "  ") }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
