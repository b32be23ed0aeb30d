package node

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/adamgarcia4/goLearning/seqcast/logger"
	"github.com/adamgarcia4/goLearning/seqcast/relay"
	"github.com/adamgarcia4/goLearning/seqcast/transport"
)

// Manager runs a whole cluster in one process: the ingress relay plus one
// node per member of the address table.
type Manager struct {
	cluster *ClusterConfig
	shared  transport.Transport

	relay   *relay.Relay
	nodes   []*Node        // maintain table order with slice
	nodeMap map[string]int // map node ID to index for quick lookup
	mu      sync.RWMutex
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithSharedTransport runs the relay and every node on one transport, such
// as an in-memory network.
func WithSharedTransport(t transport.Transport) ManagerOption {
	return func(m *Manager) {
		m.shared = t
	}
}

// NewManager creates a new manager for cluster
func NewManager(cluster *ClusterConfig, opts ...ManagerOption) (*Manager, error) {
	if cluster == nil {
		return nil, ErrConfigRequired
	}
	if err := cluster.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster: %w", err)
	}

	m := &Manager{
		cluster: cluster,
		nodes:   make([]*Node, 0, len(cluster.Nodes)),
		nodeMap: make(map[string]int, len(cluster.Nodes)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StartAll starts the relay and then every node in table order. If any
// start fails, everything already started is stopped again.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.relay != nil {
		return ErrAlreadyRunning
	}

	var relayOpts []relay.Option
	var nodeOpts []Option
	if m.shared != nil {
		relayOpts = append(relayOpts, relay.WithTransport(m.shared))
		nodeOpts = append(nodeOpts, WithTransport(m.shared))
	}

	r, err := relay.New(relay.Config{
		Addr:        m.cluster.Relay,
		Targets:     m.cluster.Addresses(),
		Transport:   m.cluster.Transport,
		DialTimeout: m.cluster.DialTimeout,
	}, relayOpts...)
	if err != nil {
		return err
	}
	if err := r.Start(); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	started := make([]*Node, 0, len(m.cluster.Nodes))
	rollback := func(cause error) error {
		for _, n := range started {
			cause = multierr.Append(cause, n.Stop())
		}
		return multierr.Append(cause, r.Stop())
	}

	for _, entry := range m.cluster.Nodes {
		cfg, err := m.cluster.NodeConfig(entry.ID)
		if err != nil {
			return rollback(err)
		}
		n, err := New(cfg, nodeOpts...)
		if err != nil {
			return rollback(fmt.Errorf("failed to create node %s: %w", entry.ID, err))
		}
		if err := n.Start(); err != nil {
			return rollback(fmt.Errorf("failed to start node %s: %w", entry.ID, err))
		}
		started = append(started, n)
	}

	m.relay = r
	m.nodes = started
	for i, n := range started {
		m.nodeMap[n.GetConfig().NodeID] = i
	}
	logger.Infof("cluster started: relay %s, %d nodes, sequencer %s", r.Addr(), len(started), m.cluster.Sequencer)
	return nil
}

// GetNodes returns a list of all nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// Node returns the node with the given ID.
func (m *Manager) Node(id string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.nodeMap[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return m.nodes[idx], nil
}

// Relay returns the running relay, or nil before StartAll.
func (m *Manager) Relay() *relay.Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relay
}

// StopNode stops one node but keeps it listed, so its journal stays
// readable. Its peers see it as unreachable from then on.
func (m *Manager) StopNode(id string) error {
	n, err := m.Node(id)
	if err != nil {
		return err
	}
	return n.Stop()
}

// StopAll stops every running node and then the relay.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	r := m.relay
	m.relay = nil
	m.mu.Unlock()

	var err error
	for _, n := range nodes {
		if !n.IsRunning() {
			continue
		}
		err = multierr.Append(err, n.Stop())
	}
	if r != nil {
		err = multierr.Append(err, r.Stop())
	}
	if err != nil {
		return fmt.Errorf("errors stopping cluster: %w", err)
	}
	return nil
}
