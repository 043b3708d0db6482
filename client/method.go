package client

import (
	"context"
	"fmt"
)

// Method is an immutable handle on a remote method. Extending it never changes
// the receiver; calling it never changes its state.
type Method struct {
	client *Client
	name   string
}

// Extend returns the handle for name + "." + segment.
func (m Method) Extend(segment string) Method {
	return Method{client: m.client, name: m.name + "." + segment}
}

func (m Method) Name() string {
	return m.name
}

func (m Method) Call(ctx context.Context, args ...any) (any, error) {
	return m.client.Call(ctx, m.name, args...)
}

// CallResult decodes the result into out, e.g. a *decimal.Decimal or a struct pointer.
func (m Method) CallResult(ctx context.Context, out any, args ...any) error {
	return m.client.CallResult(ctx, out, m.name, args...)
}

func (m Method) String() string {
	return fmt.Sprintf("<RPCMethod %q>", m.name)
}
