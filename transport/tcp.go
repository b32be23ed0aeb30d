package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adamgarcia4/goLearning/seqcast/wire"
)

// acceptBackoff paces the accept loop after a failed Accept.
const acceptBackoff = 50 * time.Millisecond

// TCP sends each frame on a fresh connection and closes it after the write.
type TCP struct {
	opts Options
}

func NewTCP(opts Options) *TCP {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TCP{opts: opts}
}

func (t *TCP) NewServer(addr string, handler FrameHandler) (Server, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler must be provided")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPServer{
		addr:        addr,
		handler:     handler,
		readTimeout: t.opts.ReadTimeout,
		log:         t.opts.Log,
		conns:       make(map[net.Conn]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Send dials addr, writes frame and closes the connection.
func (t *TCP) Send(ctx context.Context, addr string, frame []byte) error {
	d := net.Dialer{Timeout: t.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	return nil
}

// Close is a no-op: TCP keeps no outbound state between sends.
func (t *TCP) Close() error {
	return nil
}

// TCPServer runs one accept loop and one goroutine per inbound connection.
type TCPServer struct {
	addr        string
	handler     FrameHandler
	readTimeout time.Duration
	log         *logrus.Entry

	lis   net.Listener
	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *TCPServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(lis)
	return nil
}

func (s *TCPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return s.addr
	}
	return s.lis.Addr().String()
}

// Stop closes the listener and every open inbound connection, then waits
// for handlers to return.
func (s *TCPServer) Stop() error {
	s.cancel()

	s.mu.Lock()
	var err error
	if s.lis != nil {
		err = s.lis.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *TCPServer) acceptLoop(lis net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("accept failed")
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(acceptBackoff):
			}
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *TCPServer) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}

	// One frame per connection; read one byte past the limit so that the
	// codec can reject oversized frames.
	frame, err := io.ReadAll(io.LimitReader(conn, wire.MaxFrameSize+1))
	if err != nil {
		s.log.WithError(err).WithField("remote", conn.RemoteAddr().String()).Warn("read failed, frame dropped")
		return
	}
	if len(frame) == 0 {
		return
	}
	s.handler(s.ctx, frame)
}

func (s *TCPServer) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *TCPServer) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
