package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry tracks running servers by port so no two servers claim the
// same one. A registry is owned by whoever constructs it, typically
// the test harness; servers only join and leave.
type Registry struct {
	mu      sync.Mutex
	servers map[int]Server

	shutdown sync.Once
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{servers: make(map[int]Server)}
}

// Register claims s's port. A port that already has a server fails
// with *DuplicatePortError, leaving the existing registration alone.
func (r *Registry) Register(s Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	port := s.Port()
	if _, taken := r.servers[port]; taken {
		return &DuplicatePortError{Port: port}
	}
	r.servers[port] = s
	return nil
}

// Unregister releases s's port and reports whether s actually held it,
// so duplicate stops stay quiet.
func (r *Registry) Unregister(s Server) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	port := s.Port()
	if r.servers[port] != s {
		return false
	}
	delete(r.servers, port)
	return true
}

// Get returns the server holding port, if any.
func (r *Registry) Get(port int) (Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[port]
	return s, ok
}

// Each calls fn for every registered server in port order. fn runs on
// a snapshot, outside the registry lock.
func (r *Registry) Each(fn func(Server)) {
	for _, s := range r.snapshot() {
		fn(s)
	}
}

// Len returns the number of registered servers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.servers)
}

func (r *Registry) snapshot() []Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	ports := make([]int, 0, len(r.servers))
	for port := range r.servers {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	servers := make([]Server, 0, len(ports))
	for _, port := range ports {
		servers = append(servers, r.servers[port])
	}
	return servers
}

// Shutdown stops every registered server. It runs at most once per
// registry; later calls return nil. One server failing to stop does
// not keep the rest from being stopped; the first failure is returned
// along with how many there were.
func (r *Registry) Shutdown(ctx context.Context) error {
	var err error
	r.shutdown.Do(func() {
		servers := r.snapshot()

		var first error
		failed := 0
		for _, s := range servers {
			if stopErr := s.Stop(ctx); stopErr != nil {
				failed++
				if first == nil {
					first = stopErr
				}
			}
		}
		if first != nil {
			err = fmt.Errorf("stopping %d of %d servers: %w", failed, len(servers), first)
		}
	})
	return err
}
