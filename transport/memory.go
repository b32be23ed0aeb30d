package transport

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process network. Each Send runs the receiving handler on a
// new goroutine, mirroring one connection per frame. Addresses can be marked
// down to simulate unreachable peers.
type Memory struct {
	mu      sync.RWMutex
	servers map[string]*MemoryServer
	down    map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		servers: make(map[string]*MemoryServer),
		down:    make(map[string]bool),
	}
}

func (m *Memory) NewServer(addr string, handler FrameHandler) (Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler must be provided")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryServer{net: m, addr: addr, handler: handler, ctx: ctx, cancel: cancel}, nil
}

func (m *Memory) Send(ctx context.Context, addr string, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	srv, ok := m.servers[addr]
	down := m.down[addr]
	m.mu.RUnlock()

	if !ok || down {
		return fmt.Errorf("%w: %s", ErrUnreachable, addr)
	}

	buf := append([]byte(nil), frame...)
	if !srv.dispatch(buf) {
		return fmt.Errorf("%w: %s", ErrUnreachable, addr)
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// SetDown makes sends to addr fail until cleared.
func (m *Memory) SetDown(addr string, down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[addr] = down
}

// MemoryServer is a registration on a Memory network.
type MemoryServer struct {
	net     *Memory
	addr    string
	handler FrameHandler
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	handlers sync.WaitGroup
}

// dispatch runs the handler on its own goroutine unless the server has
// stopped.
func (s *MemoryServer) dispatch(frame []byte) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.handlers.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.handlers.Done()
		s.handler(s.ctx, frame)
	}()
	return true
}

func (s *MemoryServer) Start() error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	if _, taken := s.net.servers[s.addr]; taken {
		return fmt.Errorf("%w: %s", ErrAddressInUse, s.addr)
	}
	s.net.servers[s.addr] = s
	return nil
}

// Stop unregisters the server and waits for running handlers to return.
func (s *MemoryServer) Stop() error {
	s.cancel()
	s.net.mu.Lock()
	if s.net.servers[s.addr] == s {
		delete(s.net.servers, s.addr)
	}
	s.net.mu.Unlock()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.handlers.Wait()
	return nil
}

func (s *MemoryServer) Addr() string {
	return s.addr
}
