package client

import (
	"bitcoin-rpc/message"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorFactory turns a raw JSON-RPC error object into an error. Returning nil
// falls back to *Error.
type ErrorFactory func(raw any) error

// Error is the default JSON-RPC failure. Raw is the error object exactly as decoded
// from the response, usually map[string]any{"code": int64, "message": string}.
type Error struct {
	Raw any
}

func (e *Error) Error() string {
	if obj, ok := e.Raw.(map[string]any); ok {
		if _, hasCode := obj["code"]; hasCode {
			return fmt.Sprintf("json-rpc error %d: %s", e.Code(), e.Message())
		}
	}
	return fmt.Sprintf("json-rpc error: %v", e.Raw)
}

// Code returns the "code" member, or 0 when it is missing or not an integer.
func (e *Error) Code() int {
	obj, ok := e.Raw.(map[string]any)
	if !ok {
		return 0
	}
	switch code := obj["code"].(type) {
	case int64:
		return int(code)
	case int:
		return code
	case float64:
		return int(code)
	case decimal.Decimal:
		if code.IsInteger() {
			return int(code.IntPart())
		}
	case json.Number:
		if n, err := code.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

// Message returns the "message" member, or "" when it is missing.
func (e *Error) Message() string {
	obj, ok := e.Raw.(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := obj["message"].(string)
	return msg
}

// Is matches a *message.Error target with the same code, so callers can write
// errors.Is(err, &message.Error{Code: -5}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*message.Error)
	return ok && t.Code == e.Code()
}
