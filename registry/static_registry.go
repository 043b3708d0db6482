package registry

import (
	"context"
	"sync"
)

// StaticRegistry is an in-memory Registry. It serves endpoint lists that come from
// configuration rather than etcd, and stands in for etcd in tests.
// TTLs are ignored.
type StaticRegistry struct {
	mu        sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

func (s *StaticRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	insts := s.instances[serviceName]
	for i := range insts {
		if insts[i].Addr == instance.Addr {
			insts[i] = instance
			s.notify(serviceName)
			return nil
		}
	}
	s.instances[serviceName] = append(insts, instance)
	s.notify(serviceName)
	return nil
}

func (s *StaticRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	insts := s.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			s.instances[serviceName] = append(insts[:i:i], insts[i+1:]...)
			s.notify(serviceName)
			break
		}
	}
	return nil
}

func (s *StaticRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(serviceName), nil
}

// Watch emits the current list immediately, then after every change.
// Slow readers only ever see the latest list.
func (s *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	s.mu.Lock()
	s.watchers[serviceName] = append(s.watchers[serviceName], ch)
	ch <- s.snapshot(serviceName)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		watchers := s.watchers[serviceName]
		for i, w := range watchers {
			if w == ch {
				s.watchers[serviceName] = append(watchers[:i:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

func (s *StaticRegistry) snapshot(serviceName string) []ServiceInstance {
	return append([]ServiceInstance(nil), s.instances[serviceName]...)
}

// notify must be called with s.mu held.
func (s *StaticRegistry) notify(serviceName string) {
	list := s.snapshot(serviceName)
	for _, ch := range s.watchers[serviceName] {
		// Replace a stale pending list with the latest one
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
