package registry

import (
	"context"
	"testing"
	"time"
)

func TestStaticRegisterAndDiscover(t *testing.T) {
	reg := NewStaticRegistry()
	ctx := context.Background()

	reg.Register(ctx, "bitcoind", ServiceInstance{Addr: ":8332", Weight: 10}, 0)
	reg.Register(ctx, "bitcoind", ServiceInstance{Addr: ":8333", Weight: 5}, 0)
	// Re-registering the same address replaces it
	reg.Register(ctx, "bitcoind", ServiceInstance{Addr: ":8332", Weight: 1}, 0)

	instances, _ := reg.Discover(ctx, "bitcoind")
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}
	if instances[0].Weight != 1 {
		t.Fatalf("expect replaced weight 1, got %d", instances[0].Weight)
	}

	reg.Deregister(ctx, "bitcoind", ":8332")
	instances, _ = reg.Discover(ctx, "bitcoind")
	if len(instances) != 1 || instances[0].Addr != ":8333" {
		t.Fatalf("expect only :8333, got %v", instances)
	}

	if others, _ := reg.Discover(ctx, "litecoind"); len(others) != 0 {
		t.Fatalf("expect no instances for unknown service, got %v", others)
	}
}

func TestStaticWatch(t *testing.T) {
	reg := NewStaticRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	ch := reg.Watch(ctx, "bitcoind")
	if first := <-ch; len(first) != 0 {
		t.Fatalf("expect empty initial list, got %v", first)
	}

	reg.Register(ctx, "bitcoind", ServiceInstance{Addr: ":8332"}, 0)
	select {
	case list := <-ch:
		if len(list) != 1 {
			t.Fatalf("expect 1 instance, got %v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not emit after register")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// a pending update may still be buffered; the next read must see the close
			if _, ok := <-ch; ok {
				t.Fatal("expect channel closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
