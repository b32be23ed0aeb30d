package transport

/*
Transport

A transport moves opaque frames between node addresses. Every Send is a
single, independent delivery attempt: open, write one frame, close. There is
no acknowledgment beyond the write succeeding and no retry.

Implementations:
	tcp    - one TCP connection per frame (the default, wire compatible
	         with plain socket senders)
	grpc   - one unary Deliver RPC per frame over a cached client connection
	memory - in-process network for tests
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	KindTCP  = "tcp"
	KindGRPC = "grpc"
)

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrUnreachable      = errors.New("address unreachable")
	ErrAddressInUse     = errors.New("address already in use")
)

// FrameHandler processes one inbound frame. It runs on its own goroutine per
// inbound delivery and may run concurrently with other invocations.
type FrameHandler func(ctx context.Context, frame []byte)

// Server accepts inbound frames on one address.
type Server interface {
	// Start binds synchronously and serves in the background.
	Start() error
	Stop() error
	// Addr returns the bound address once started.
	Addr() string
}

// Transport creates servers and sends frames.
type Transport interface {
	NewServer(addr string, handler FrameHandler) (Server, error)
	Send(ctx context.Context, addr string, frame []byte) error
	Close() error
}

// Options tunes network transports. Zero timeouts mean none.
type Options struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
	Log         *logrus.Entry
}

// New builds a network transport by kind.
func New(kind string, opts Options) (Transport, error) {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	switch kind {
	case KindTCP, "":
		return NewTCP(opts), nil
	case KindGRPC:
		return NewGRPC(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
}
