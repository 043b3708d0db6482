package transport

import (
	"bitcoin-rpc/loadbalance"
	"bitcoin-rpc/message"
	"bitcoin-rpc/registry"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// DiscoveryTransport resolves the daemon address on every request:
//
//	Request → Registry.Discover(service) → Balancer.Pick(method) → HTTPTransport(addr)
//
// Instances registered as "host:port" inherit scheme, credentials and path from baseURL.
// One HTTPTransport is kept per address.
type DiscoveryTransport struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	service  string
	base     *url.URL
	opts     []HTTPOption

	mu         sync.Mutex
	transports map[string]*HTTPTransport
}

func NewDiscoveryTransport(reg registry.Registry, bal loadbalance.Balancer, service string, baseURL string, opts ...HTTPOption) (*DiscoveryTransport, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" {
		return nil, fmt.Errorf("base url %q: scheme is required", base.Redacted())
	}
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	return &DiscoveryTransport{
		registry:   reg,
		balancer:   bal,
		service:    service,
		base:       base,
		opts:       opts,
		transports: make(map[string]*HTTPTransport),
	}, nil
}

func (d *DiscoveryTransport) Request(ctx context.Context, data []byte) ([]byte, error) {
	method, err := message.MethodOf(data)
	if err != nil {
		return nil, fmt.Errorf("discovery transport: %w", err)
	}

	instances, err := d.registry.Discover(ctx, d.service)
	if err != nil {
		return nil, &Error{
			Message:  fmt.Sprintf("discover %s: %v", d.service, err),
			Code:     message.CodeMissingResponse,
			Protocol: d.base.Scheme,
			Err:      err,
		}
	}

	instance, err := d.balancer.Pick(method, instances)
	if err != nil {
		return nil, &Error{
			Message:  fmt.Sprintf("pick %s instance with %s: %v", d.service, d.balancer.Name(), err),
			Code:     message.CodeMissingResponse,
			Protocol: d.base.Scheme,
			Err:      err,
		}
	}

	t, err := d.getTransport(instance.Addr)
	if err != nil {
		return nil, err
	}
	return t.Request(ctx, data)
}

func (d *DiscoveryTransport) getTransport(addr string) (*HTTPTransport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.transports[addr]; ok {
		return t, nil
	}

	t, err := NewHTTPTransport(d.instanceURL(addr), d.opts...)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", addr, err)
	}
	d.transports[addr] = t
	return t, nil
}

func (d *DiscoveryTransport) instanceURL(addr string) string {
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return addr
		}
		if u.User == nil {
			u.User = d.base.User
		}
		return u.String()
	}
	u := *d.base
	u.Host = addr
	return u.String()
}
