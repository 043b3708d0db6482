// Package message defines the JSON-RPC 1.1 envelopes exchanged between client and daemon.
//
// Request is the "envelope" for every call. It gets serialized by the codec layer
// and handed to a transport as plain bytes:
//
//	{"version": "1.1", "method": "wallet.listtransactions", "params": ["*", 10], "id": 7}
//
// Responses carry either a result or an error object:
//
//	{"result": 12.5, "error": null, "id": 7}
//	{"result": null, "error": {"code": -5, "message": "Invalid address"}, "id": 7}
package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the protocol version written into every request.
const Version = "1.1"

// Synthetic error codes produced on the client side.
const (
	CodeMissingResponse = -342 // no HTTP response obtained at all
	CodeMissingResult   = -343 // response without a "result" member
)

// MissingResultMessage is the message of the synthetic error raised for responses without a result.
const MissingResultMessage = "missing JSON-RPC result"

// Request carries a single remote call.
//
// Params is always encoded as a JSON array, even when the call has no arguments.
type Request struct {
	Version string `json:"version"`
	Method  string `json:"method"` // dotted name, e.g. "wallet.listtransactions"
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// NewRequest builds a request envelope, normalising nil params to an empty array.
func NewRequest(method string, params []any, id uint64) *Request {
	if params == nil {
		params = []any{}
	}
	return &Request{
		Version: Version,
		Method:  method,
		Params:  params,
		ID:      id,
	}
}

// Response is the decoded response envelope.
//
// HasResult distinguishes a missing "result" member from an explicit null one,
// and Error is nil both when the member is absent and when it is null.
type Response struct {
	Result    json.RawMessage
	HasResult bool
	Error     json.RawMessage
	ID        json.RawMessage
}

// ParseResponse splits a serialized response into its members without decoding their values.
func ParseResponse(data []byte) (*Response, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	if members == nil {
		return nil, errors.New("response is not a JSON object")
	}

	resp := &Response{ID: members["id"]}
	if result, ok := members["result"]; ok {
		resp.Result = result
		resp.HasResult = true
	}
	if errRaw, ok := members["error"]; ok && !isNull(errRaw) {
		resp.Error = errRaw
	}
	return resp, nil
}

// Error is the conventional shape of a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// MethodOf reads only the "method" member of a serialized request.
// Transports and middlewares use it to route or label a call without decoding params.
func MethodOf(data []byte) (string, error) {
	var peek struct {
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return "", err
	}
	if peek.Method == nil {
		return "", errors.New("request has no method")
	}
	return *peek.Method, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
