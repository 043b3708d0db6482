package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// JSONCodec uses encoding/json for the envelope and shopspring/decimal for numbers.
//
// Fractional numbers in responses become decimal.Decimal, never float64: amounts such as
// 0.1 BTC must survive the round trip exactly. Integers become int64, and integers too
// large for int64 fall back to decimal.Decimal as well.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode unmarshals data into v. Typed targets (structs, decimal.Decimal, ...) go through
// encoding/json directly; *any targets get the decimal-aware generic tree.
func (c *JSONCodec) Decode(data []byte, v any) error {
	target, ok := v.(*any)
	if !ok {
		return json.Unmarshal(data, v)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	// Reject trailing garbage the same way json.Unmarshal does
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("codec: invalid character after top-level value")
	}

	*target = convertNumbers(raw)
	return nil
}

func (c *JSONCodec) Name() string {
	return "json"
}

// convertNumbers walks a UseNumber tree and replaces every json.Number in place.
func convertNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		return convertNumber(val)
	case map[string]any:
		for k, item := range val {
			val[k] = convertNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = convertNumbers(item)
		}
		return val
	default:
		return v
	}
}

func convertNumber(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return n
	}
	return d
}
