package node

import "errors"

var (
	ErrConfigRequired       = errors.New("config is required")
	ErrNodeIDRequired       = errors.New("node ID is required")
	ErrInvalidNodeID        = errors.New("node ID must not contain whitespace or ':'")
	ErrAddressRequired      = errors.New("address is required")
	ErrPortRequired         = errors.New("port is required")
	ErrSequencerRequired    = errors.New("sequencer address is required")
	ErrUnknownTransport     = errors.New("unknown transport")
	ErrInvalidTimeout       = errors.New("timeouts must not be negative")
	ErrInvalidJournalSize   = errors.New("journal size must be positive")
	ErrNoIngress            = errors.New("no ingress relay configured")
	ErrNotRunning           = errors.New("node is not running")
	ErrAlreadyRunning       = errors.New("node is already running")
	ErrStopped              = errors.New("node was stopped and cannot be restarted")
	ErrUnknownNode          = errors.New("unknown node")
	ErrDuplicateNode        = errors.New("duplicate node ID")
	ErrEmptyCluster         = errors.New("cluster has no nodes")
	ErrUnknownSequencer     = errors.New("sequencer is not a cluster member")
	ErrRelayAddressRequired = errors.New("relay address is required")
)
