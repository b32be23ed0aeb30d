package node

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamgarcia4/goLearning/seqcast/transport"
)

// Default configuration constants. The ports reproduce the classic
// five-node deployment: relay on 8081, sequencer on 8082, nodes on 8083-8086.
const (
	DefaultAddress     = "127.0.0.1"
	DefaultPort        = "8082"
	DefaultNodeID      = "node-1"
	DefaultRelayAddr   = "127.0.0.1:8081"
	DefaultTransport   = transport.KindTCP
	DefaultDialTimeout = 3 * time.Second
	DefaultJournalSize = 500
)

// Config holds the configuration for a node
type Config struct {
	// Node identification
	NodeID string

	// Server configuration
	Address string
	Port    string

	// Role and static address table
	IsSequencer   bool
	SequencerAddr string   // where sequence requests go; own address when IsSequencer
	Peers         []string // every other node, the sequencer's broadcast targets
	RelayAddr     string   // ingress relay receiving this node's submissions

	// Optional admin HTTP endpoint, served by the CLI
	AdminAddr string

	// Transport configuration
	Transport   string
	DialTimeout time.Duration
	ReadTimeout time.Duration // 0 waits for a frame indefinitely

	// Observability
	JournalSize      int
	MetricsPath      string
	SnapshotInterval time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(nodeID string) *Config {
	return &Config{
		NodeID:        nodeID,
		Address:       DefaultAddress,
		Port:          DefaultPort,
		SequencerAddr: DefaultAddress + ":" + DefaultPort,
		Peers:         []string{},
		RelayAddr:     DefaultRelayAddr,
		Transport:     DefaultTransport,
		DialTimeout:   DefaultDialTimeout,
		JournalSize:   DefaultJournalSize,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return ErrNodeIDRequired
	}
	if strings.ContainsAny(c.NodeID, " \t\r\n:") {
		return fmt.Errorf("%w: %q", ErrInvalidNodeID, c.NodeID)
	}
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.Port == "" {
		return ErrPortRequired
	}
	if !c.IsSequencer && c.SequencerAddr == "" {
		return ErrSequencerRequired
	}
	switch c.Transport {
	case transport.KindTCP, transport.KindGRPC:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Transport)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.SnapshotInterval < 0 {
		return ErrInvalidTimeout
	}
	if c.JournalSize <= 0 {
		return ErrInvalidJournalSize
	}
	return nil
}

// GetAddress returns the full address (address:port)
func (c *Config) GetAddress() string {
	return net.JoinHostPort(c.Address, c.Port)
}

// ClusterConfig is the static address table shared by every process of a
// deployment. It is usually loaded from YAML:
//
//	relay: 127.0.0.1:8081
//	transport: tcp
//	sequencer: node-1
//	nodes:
//	  - id: node-1
//	    address: 127.0.0.1:8082
//	    admin: 127.0.0.1:9082
type ClusterConfig struct {
	Relay       string        `yaml:"relay"`
	Transport   string        `yaml:"transport,omitempty"`
	Sequencer   string        `yaml:"sequencer"`
	DialTimeout time.Duration `yaml:"dial_timeout,omitempty"`
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
	Nodes       []NodeEntry   `yaml:"nodes"`
}

// NodeEntry is one member of the address table.
type NodeEntry struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Admin   string `yaml:"admin,omitempty"`
}

// DefaultCluster returns the classic deployment: relay on 8081 and five
// nodes on 8082-8086 with node-1 sequencing.
func DefaultCluster() *ClusterConfig {
	c := &ClusterConfig{
		Relay:       DefaultRelayAddr,
		Transport:   DefaultTransport,
		Sequencer:   DefaultNodeID,
		DialTimeout: DefaultDialTimeout,
	}
	for i := 1; i <= 5; i++ {
		c.Nodes = append(c.Nodes, NodeEntry{
			ID:      fmt.Sprintf("node-%d", i),
			Address: fmt.Sprintf("%s:%d", DefaultAddress, 8081+i),
		})
	}
	return c
}

// LoadCluster reads and validates a YAML address table.
func LoadCluster(path string) (*ClusterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster file: %w", err)
	}
	return ParseCluster(data)
}

// ParseCluster decodes and validates a YAML address table.
func ParseCluster(data []byte) (*ClusterConfig, error) {
	var c ClusterConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse cluster file: %w", err)
	}
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks membership and addressing.
func (c *ClusterConfig) Validate() error {
	if c.Relay == "" {
		return ErrRelayAddressRequired
	}
	if len(c.Nodes) == 0 {
		return ErrEmptyCluster
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID == "" {
			return ErrNodeIDRequired
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = true
		if _, _, err := net.SplitHostPort(n.Address); err != nil {
			return fmt.Errorf("node %s: %w: %v", n.ID, ErrAddressRequired, err)
		}
	}
	if !seen[c.Sequencer] {
		return fmt.Errorf("%w: %q", ErrUnknownSequencer, c.Sequencer)
	}
	return nil
}

// Entry returns the member with the given ID.
func (c *ClusterConfig) Entry(id string) (NodeEntry, error) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return NodeEntry{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
}

// Addresses returns every member's address in table order.
func (c *ClusterConfig) Addresses() []string {
	addrs := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		addrs = append(addrs, n.Address)
	}
	return addrs
}

// NodeConfig derives the runtime config of member id: peers are all other
// members, and the sequencer address comes from the table.
func (c *ClusterConfig) NodeConfig(id string) (*Config, error) {
	self, err := c.Entry(id)
	if err != nil {
		return nil, err
	}
	seq, err := c.Entry(c.Sequencer)
	if err != nil {
		return nil, err
	}
	host, port, err := net.SplitHostPort(self.Address)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}

	cfg := DefaultConfig(id)
	cfg.Address = host
	cfg.Port = port
	cfg.IsSequencer = id == c.Sequencer
	cfg.SequencerAddr = seq.Address
	cfg.RelayAddr = c.Relay
	cfg.AdminAddr = self.Admin
	cfg.Transport = c.Transport
	if c.DialTimeout > 0 {
		cfg.DialTimeout = c.DialTimeout
	}
	cfg.ReadTimeout = c.ReadTimeout

	cfg.Peers = make([]string, 0, len(c.Nodes)-1)
	for _, n := range c.Nodes {
		if n.ID != id {
			cfg.Peers = append(cfg.Peers, n.Address)
		}
	}
	return cfg, nil
}
