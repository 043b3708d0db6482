// Package codec serializes JSON-RPC envelopes and decodes response values.
//
// The daemon speaks JSON only, so JSONCodec is the only implementation shipped,
// but the client accepts any Codec (e.g. one with different number handling).
package codec

type Codec interface {
	Encode(v any) ([]byte, error)
	// Decode fills v from data. Decoding into *any yields the generic value tree
	// (map[string]any, []any, string, bool, nil, int64, decimal.Decimal).
	Decode(data []byte, v any) error
	Name() string
}

// Default is the codec used when the caller does not provide one.
var Default Codec = &JSONCodec{}
