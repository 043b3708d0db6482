// Package transport moves serialized JSON-RPC requests to a daemon and brings back
// the serialized response.
//
// The protocol core only depends on the Transport interface:
//
//	client ──request bytes──→ Transport ──→ daemon
//	client ←─response bytes── Transport ←── daemon
//
// Implementations:
//   - HTTPTransport:      one authenticated POST per call
//   - FakeTransport:      replays canned responses per method name (tests)
//   - DiscoveryTransport: resolves the daemon address through a registry before each call
package transport

import (
	"context"
	"fmt"
	"strings"
)

// Transport sends one serialized request and returns the serialized response.
// A transport never interprets JSON-RPC errors; that is the client's job.
type Transport interface {
	Request(ctx context.Context, data []byte) ([]byte, error)
}

// TransportFunc adapts an ordinary function to the Transport interface.
type TransportFunc func(ctx context.Context, data []byte) ([]byte, error)

func (f TransportFunc) Request(ctx context.Context, data []byte) ([]byte, error) {
	return f(ctx, data)
}

// Error describes a network or protocol condition below JSON-RPC.
type Error struct {
	Message  string
	Code     int    // 0 when no code applies
	Protocol string // URL scheme, e.g. "http"
	Detail   any    // raw diagnostic payload, e.g. the *http.Response
	Err      error  // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("transport")
	if e.Protocol != "" {
		fmt.Fprintf(&b, " (%s)", e.Protocol)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code %d", e.Code)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}
