package relay

/*
Ingress Relay

The relay is the fan-out channel for fresh submissions. A node hands its
RAW frame to the relay, and the relay forwards the bytes unchanged to every
node in the address table, the submitter included. Each forward is its own
attempt: a failed target is logged and skipped, the others still receive
the frame. Nothing is retried.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/transport"
)

var (
	ErrAddressRequired = errors.New("relay address is required")
	ErrNoTargets       = errors.New("relay needs at least one target")
	ErrNotRunning      = errors.New("relay is not running")
)

// Config configures a relay.
type Config struct {
	Addr        string
	Targets     []string
	Transport   string
	DialTimeout time.Duration
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrAddressRequired
	}
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	return nil
}

// Option customizes a Relay.
type Option func(*Relay)

// WithTransport makes the relay use a shared transport it does not close.
func WithTransport(t transport.Transport) Option {
	return func(r *Relay) {
		r.transport = t
		r.ownsTransport = false
	}
}

// Relay forwards every inbound frame to all targets.
type Relay struct {
	config        Config
	transport     transport.Transport
	ownsTransport bool
	server        transport.Server
	log           *logrus.Entry

	forwarded atomic.Uint64
	failures  atomic.Uint64
	inflight  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a relay from config.
func New(config Config, opts ...Option) (*Relay, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		config: config,
		log:    logger.ForNode("relay"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.transport == nil {
		tr, err := transport.New(config.Transport, transport.Options{
			DialTimeout: config.DialTimeout,
			Log:         r.log,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		r.transport = tr
		r.ownsTransport = true
	}
	return r, nil
}

// Start binds the relay's listening address.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	srv, err := r.transport.NewServer(r.config.Addr, r.forward)
	if err != nil {
		return fmt.Errorf("failed to create relay server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to bind relay: %w", err)
	}
	r.server = srv
	r.log.Infof("relay listening on %s, forwarding to %d nodes", srv.Addr(), len(r.config.Targets))
	return nil
}

// Stop stops accepting frames and waits for in-flight forwards.
func (r *Relay) Stop() error {
	r.mu.Lock()
	srv := r.server
	r.server = nil
	r.mu.Unlock()

	if srv == nil {
		return ErrNotRunning
	}
	err := srv.Stop()
	r.cancel()
	r.inflight.Wait()

	if r.ownsTransport {
		if cerr := r.transport.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	r.log.Info("relay stopped")
	return err
}

// Addr returns the bound address, or the configured one before Start.
func (r *Relay) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server != nil {
		return r.server.Addr()
	}
	return r.config.Addr
}

// Stats returns how many per-target forwards succeeded and failed.
func (r *Relay) Stats() (forwarded, failures uint64) {
	return r.forwarded.Load(), r.failures.Load()
}

func (r *Relay) forward(ctx context.Context, frame []byte) {
	if ctx.Err() != nil {
		return
	}
	for _, target := range r.config.Targets {
		r.inflight.Add(1)
		go func(target string) {
			defer r.inflight.Done()
			if err := r.transport.Send(ctx, target, frame); err != nil {
				r.failures.Add(1)
				r.log.WithError(err).WithField("target", target).Warn("forward failed")
				return
			}
			r.forwarded.Add(1)
		}(target)
	}
}
