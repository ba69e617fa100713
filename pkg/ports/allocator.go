// Package ports discovers free TCP ports for session wiring.
package ports

import (
	"fmt"
	"net"
)

// Allocator hands out free ports bound on the loopback interface.
type Allocator interface {
	Allocate(n int) ([]int, error)
}

// OSAllocator asks the kernel for OS-assigned ports.
type OSAllocator struct{}

// NewOSAllocator creates an allocator backed by ephemeral listeners.
func NewOSAllocator() *OSAllocator {
	return &OSAllocator{}
}

// Allocate returns n pairwise-distinct free ports. All listeners are held
// open until every port is reserved so the kernel cannot hand the same port
// out twice within one call.
func (a *OSAllocator) Allocate(n int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("ports: invalid count %d", n)
	}
	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("ports: allocate: %w", err)
		}
		listeners = append(listeners, l)
		addr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			return nil, fmt.Errorf("ports: unexpected listener address %T", l.Addr())
		}
		out = append(out, addr.Port)
	}
	return out, nil
}

// Fixed is an Allocator that returns a preset port list, mainly for tests.
type Fixed struct {
	Ports []int
}

// Allocate returns the first n preset ports.
func (f *Fixed) Allocate(n int) ([]int, error) {
	if len(f.Ports) < n {
		return nil, fmt.Errorf("ports: only %d fixed ports available, need %d", len(f.Ports), n)
	}
	out := make([]int, n)
	copy(out, f.Ports[:n])
	return out, nil
}
