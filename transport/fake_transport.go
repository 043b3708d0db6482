package transport

import (
	"bitcoin-rpc/codec"
	"bitcoin-rpc/message"
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoFixture means a test called a method more often than fixtures were loaded for it.
var ErrNoFixture = errors.New("no fixture queued")

// FakeTransport replays canned response bodies, one FIFO queue per method name.
//
//	fake.LoadRaw("getbalance", map[string]any{"result": "12.5", "error": nil, "id": 1})
//	fake.LoadSerialized("getbalance", `{"result": "13.0", "error": null, "id": 2}`)
//
// Only the request's "method" member is read; params and id are ignored.
type FakeTransport struct {
	mu   sync.Mutex
	data map[string][][]byte
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{data: make(map[string][][]byte)}
}

// LoadSerialized queues an already serialized response body.
func (f *FakeTransport) LoadSerialized(method string, fixture string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[method] = append(f.data[method], []byte(fixture))
}

// LoadRaw serializes fixture and queues it.
func (f *FakeTransport) LoadRaw(method string, fixture any) error {
	body, err := codec.Default.Encode(fixture)
	if err != nil {
		return fmt.Errorf("fake transport: encode fixture for %q: %w", method, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[method] = append(f.data[method], body)
	return nil
}

// Pending reports how many fixtures remain for method.
func (f *FakeTransport) Pending(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[method])
}

func (f *FakeTransport) Request(ctx context.Context, data []byte) ([]byte, error) {
	method, err := message.MethodOf(data)
	if err != nil {
		return nil, fmt.Errorf("fake transport: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	queue := f.data[method]
	if len(queue) == 0 {
		return nil, fmt.Errorf("fake transport: %w for method %q", ErrNoFixture, method)
	}
	next := queue[0]
	f.data[method] = queue[1:]
	return next, nil
}
