package node

/*
Node Runtime

Every process of the cluster runs the same runtime; the sequencer is the node
whose config sets IsSequencer, and it differs only by holding a
multicast.Sequencer.

Inbound frames are dispatched by kind:

	RAW(m)        observe m; sequencer assigns directly, others send
	              SEQREQ(m, nonce) to the sequencer
	SEQREQ(m, _)  sequencer only: assign and broadcast; ignored elsewhere
	SEQ(n, m)     observe m; hand (n, m) to the delivery buffer

Assignment delivers SEQ(n, m) to the local buffer through the same path as
a remote SEQ, then broadcasts it to every peer. Each peer gets its own
goroutine and its own failure: an unreachable peer is logged and skipped.

Outbound submissions never fan out directly. Submit formats the message,
records it as sent and hands a RAW frame to the ingress relay.

Failures on the protocol path are counted and logged, never returned.
*/

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/metrics"
	"github.com/adamgarcia4/goLearning/seqcast/multicast"
	"github.com/adamgarcia4/goLearning/seqcast/transport"
	"github.com/adamgarcia4/goLearning/seqcast/wire"
)

// Option customizes a Node at construction.
type Option func(*Node)

// WithTransport makes the node use a shared transport. The node does not
// close it on Stop.
func WithTransport(t transport.Transport) Option {
	return func(n *Node) {
		n.transport = t
		n.ownsTransport = false
	}
}

// WithObserver registers an additional observer after the node's journal.
func WithObserver(o multicast.Observer) Option {
	return func(n *Node) {
		n.observers = append(n.observers, o)
	}
}

// Status is a point-in-time view of a node's protocol state.
type Status struct {
	NodeID       string   `json:"node_id"`
	Address      string   `json:"address"`
	Sequencer    bool     `json:"sequencer"`
	Running      bool     `json:"running"`
	NextExpected uint64   `json:"next_expected"`
	Pending      []uint64 `json:"pending"`
	Seen         int      `json:"seen"`
	Submitted    uint64   `json:"submitted"`
	Assigned     uint64   `json:"assigned,omitempty"`
}

// Node is one member of a sequencer-ordered multicast group.
type Node struct {
	config *Config
	log    *logrus.Entry

	transport     transport.Transport
	ownsTransport bool
	server        transport.Server

	dedup     *multicast.DedupCache
	buffer    *multicast.DeliveryBuffer
	sequencer *multicast.Sequencer // nil unless config.IsSequencer

	observers multicast.Observers
	journal   *Journal
	metrics   *metrics.Metrics
	submitted atomic.Uint64

	// inflight tracks broadcast sends, loops tracks background loops
	inflight sync.WaitGroup
	loops    sync.WaitGroup

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	running bool
	stopped bool
}

// New creates a new node with the given configuration
func New(config *Config, opts ...Option) (*Node, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config:  config,
		log:     logger.ForNode(config.NodeID),
		dedup:   multicast.NewDedupCache(),
		journal: NewJournal(config.JournalSize),
		metrics: metrics.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
	n.observers = multicast.Observers{n.journal}
	n.buffer = multicast.NewDeliveryBuffer(n.deliver)
	if config.IsSequencer {
		n.sequencer = multicast.NewSequencer()
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.transport == nil {
		tr, err := transport.New(config.Transport, transport.Options{
			DialTimeout: config.DialTimeout,
			ReadTimeout: config.ReadTimeout,
			Log:         n.log,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		n.transport = tr
		n.ownsTransport = true
	}

	return n, nil
}

// Start binds the node's listening address and starts serving frames.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return ErrStopped
	}
	if n.running {
		return ErrAlreadyRunning
	}

	srv, err := n.transport.NewServer(n.config.GetAddress(), n.handleFrame)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start() performs binding synchronously, so a port already in use is
	// reported here rather than from the serving goroutine.
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to bind server: %w", err)
	}
	n.server = srv
	n.running = true

	n.startSnapshotLoop()

	role := "member"
	if n.IsSequencer() {
		role = "sequencer"
	}
	n.logf("started on %s as %s (%d peers, relay %s)", srv.Addr(), role, len(n.config.Peers), n.config.RelayAddr)
	return nil
}

// Stop stops the node gracefully. A stopped node cannot be restarted.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return ErrNotRunning
	}
	srv := n.server
	n.running = false
	n.stopped = true
	n.mu.Unlock()

	n.logf("stopping...")

	// Stop the server first so no new frames start work
	err := srv.Stop()
	if err != nil {
		n.log.WithError(err).Error("error stopping server")
	}

	n.cancel()
	n.inflight.Wait()
	n.loops.Wait()

	if n.config.MetricsPath != "" {
		if werr := n.metrics.WriteSnapshot(n.config.MetricsPath, n.config.NodeID); werr != nil {
			n.log.WithError(werr).Warn("failed to write final metrics snapshot")
		}
	}

	if n.ownsTransport {
		if cerr := n.transport.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	n.logf("stopped")
	return err
}

// Submit formats text as this node's next message, records it as sent and
// hands it to the ingress relay. The returned message is what was sent.
func (n *Node) Submit(ctx context.Context, text string) (multicast.Message, error) {
	if !n.IsRunning() {
		return multicast.Message{}, ErrNotRunning
	}
	if n.config.RelayAddr == "" {
		return multicast.Message{}, ErrNoIngress
	}

	// a rejected submission does not consume a counter value
	var m multicast.Message
	for {
		cur := n.submitted.Load()
		m = multicast.NewMessage(n.config.NodeID, cur+1, text, time.Now())
		// the payload must still fit once wrapped in a sequence request
		if err := wire.CheckPayload(m.Payload); err != nil {
			return multicast.Message{}, fmt.Errorf("message too large to sequence: %w", err)
		}
		if n.submitted.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	frame, err := wire.Encode(wire.Raw(m.Payload))
	if err != nil {
		return multicast.Message{}, fmt.Errorf("encode submission: %w", err)
	}

	n.metrics.IncSubmitted()
	n.observers.OnSent(m)

	if err := n.transport.Send(ctx, n.config.RelayAddr, frame); err != nil {
		n.metrics.IncSendFailures()
		return m, fmt.Errorf("hand off to relay %s: %w", n.config.RelayAddr, err)
	}
	n.log.WithField("id", m.Identity()).Debug("submitted")
	return m, nil
}

// GetConfig returns the node configuration (for external access)
func (n *Node) GetConfig() *Config {
	return n.config
}

// Journal returns the node's record of sent, received and ready messages.
func (n *Node) Journal() *Journal {
	return n.journal
}

// Metrics returns the node's protocol counters.
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// IsSequencer reports whether this node assigns sequence numbers.
func (n *Node) IsSequencer() bool {
	return n.sequencer != nil
}

// IsRunning reports whether the node is serving.
func (n *Node) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// Addr returns the bound listening address, or the configured one when the
// node is not running.
func (n *Node) Addr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.server != nil {
		return n.server.Addr()
	}
	return n.config.GetAddress()
}

// Status returns the node's current protocol state.
func (n *Node) Status() Status {
	s := Status{
		NodeID:       n.config.NodeID,
		Address:      n.Addr(),
		Sequencer:    n.IsSequencer(),
		Running:      n.IsRunning(),
		NextExpected: n.buffer.NextExpected(),
		Pending:      n.buffer.Pending(),
		Seen:         n.dedup.Len(),
		Submitted:    n.submitted.Load(),
	}
	if n.sequencer != nil {
		s.Assigned = n.sequencer.Current()
	}
	return s
}

// handleFrame is the transport callback; it runs once per inbound frame on
// the connection's own goroutine.
func (n *Node) handleFrame(ctx context.Context, raw []byte) {
	n.metrics.IncFramesReceived()

	f, err := wire.Decode(raw)
	if err != nil {
		n.metrics.IncDecodeFailures()
		n.log.WithError(err).WithField("bytes", len(raw)).Warn("dropping undecodable frame")
		return
	}

	m := multicast.Message{Payload: f.Payload}
	switch f.Kind {
	case wire.KindRaw:
		n.handleRaw(ctx, m)
	case wire.KindSeqReq:
		if n.sequencer == nil {
			n.metrics.IncRequestsMisrouted()
			n.log.WithField("id", m.Identity()).Debug("ignoring sequence request on non-sequencer")
			return
		}
		n.assign(m)
	case wire.KindSeq:
		n.handleSeq(f.Seq, m)
	}
}

func (n *Node) handleRaw(ctx context.Context, m multicast.Message) {
	n.observe(m)

	if n.sequencer != nil {
		n.assign(m)
		return
	}

	frame, err := wire.Encode(wire.SeqReq(m.Payload, uuid.NewString()))
	if err != nil {
		n.log.WithError(err).WithField("id", m.Identity()).Warn("cannot encode sequence request")
		return
	}
	n.metrics.IncRequestsSent()
	if err := n.transport.Send(ctx, n.config.SequencerAddr, frame); err != nil {
		n.metrics.IncSendFailures()
		n.log.WithError(err).WithField("sequencer", n.config.SequencerAddr).Warn("sequence request failed")
	}
}

func (n *Node) handleSeq(seq uint64, m multicast.Message) {
	n.observe(m)
	n.buffer.Accept(seq, m)
}

// observe reports m to the received column the first time its identity is seen.
func (n *Node) observe(m multicast.Message) {
	if !n.dedup.Observe(m) {
		n.metrics.IncDuplicates()
		return
	}
	n.observers.OnReceived(time.Now(), m)
}

// assign numbers m, delivers the assignment locally and broadcasts it.
// Repeated requests reuse the first number and are broadcast again.
func (n *Node) assign(m multicast.Message) {
	a := n.sequencer.Assign(m)
	n.metrics.IncAssignment(a.Fresh)
	if a.Fresh {
		n.log.WithFields(logrus.Fields{"seq": a.Seq, "id": m.Identity()}).Debug("assigned")
	}

	n.handleSeq(a.Seq, a.Message)
	n.broadcast(a.Seq, a.Message)
}

func (n *Node) broadcast(seq uint64, m multicast.Message) {
	if n.ctx.Err() != nil {
		return
	}
	frame, err := wire.Encode(wire.Seq(seq, m.Payload))
	if err != nil {
		n.log.WithError(err).WithField("seq", seq).Warn("cannot encode assignment")
		return
	}
	n.metrics.IncBroadcasts()

	for _, peer := range n.config.Peers {
		n.inflight.Add(1)
		go func(peer string) {
			defer n.inflight.Done()
			if err := n.transport.Send(n.ctx, peer, frame); err != nil {
				n.metrics.IncSendFailures()
				n.log.WithError(err).WithFields(logrus.Fields{"peer": peer, "seq": seq}).Warn("broadcast failed")
			}
		}(peer)
	}
}

// deliver is the delivery buffer's callback, invoked in sequence order.
func (n *Node) deliver(seq uint64, m multicast.Message) {
	n.metrics.IncDelivered()
	n.observers.OnDelivered(seq, m)
}

// logf logs at info level with the node ID attached
func (n *Node) logf(format string, args ...interface{}) {
	n.log.Infof(format, args...)
}
