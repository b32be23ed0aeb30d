package metrics

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of a node's protocol counters.
type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	NodeID      string         `json:"node_id"`
	Frames      FrameMetrics   `json:"frames"`
	Sequencing  SeqMetrics     `json:"sequencing"`
	Delivery    DeliveryStats  `json:"delivery"`
	Network     NetworkMetrics `json:"network"`
}

type FrameMetrics struct {
	Received       uint64 `json:"received"`
	DecodeFailures uint64 `json:"decode_failures"`
	Duplicates     uint64 `json:"duplicates"`
}

type SeqMetrics struct {
	RequestsSent      uint64 `json:"requests_sent"`
	RequestsMisrouted uint64 `json:"requests_misrouted"`
	Assigned          uint64 `json:"assigned"`
	Reassigned        uint64 `json:"reassigned"`
}

type DeliveryStats struct {
	Submitted uint64 `json:"submitted"`
	Delivered uint64 `json:"delivered"`
}

type NetworkMetrics struct {
	Broadcasts   uint64 `json:"broadcasts"`
	SendFailures uint64 `json:"send_failures"`
}

// Metrics holds lock-free counters. The zero value is ready to use.
type Metrics struct {
	framesReceived    atomic.Uint64
	decodeFailures    atomic.Uint64
	duplicates        atomic.Uint64
	requestsSent      atomic.Uint64
	requestsMisrouted atomic.Uint64
	assigned          atomic.Uint64
	reassigned        atomic.Uint64
	submitted         atomic.Uint64
	delivered         atomic.Uint64
	broadcasts        atomic.Uint64
	sendFailures      atomic.Uint64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncFramesReceived()    { m.framesReceived.Add(1) }
func (m *Metrics) IncDecodeFailures()    { m.decodeFailures.Add(1) }
func (m *Metrics) IncDuplicates()        { m.duplicates.Add(1) }
func (m *Metrics) IncRequestsSent()      { m.requestsSent.Add(1) }
func (m *Metrics) IncRequestsMisrouted() { m.requestsMisrouted.Add(1) }
func (m *Metrics) IncSubmitted()         { m.submitted.Add(1) }
func (m *Metrics) IncDelivered()         { m.delivered.Add(1) }
func (m *Metrics) IncBroadcasts()        { m.broadcasts.Add(1) }
func (m *Metrics) IncSendFailures()      { m.sendFailures.Add(1) }

// IncAssignment counts a sequencer answer; fresh is false when an existing
// number was reused.
func (m *Metrics) IncAssignment(fresh bool) {
	if fresh {
		m.assigned.Add(1)
		return
	}
	m.reassigned.Add(1)
}

func (m *Metrics) Snapshot(nodeID string) Snapshot {
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		NodeID:      nodeID,
		Frames: FrameMetrics{
			Received:       m.framesReceived.Load(),
			DecodeFailures: m.decodeFailures.Load(),
			Duplicates:     m.duplicates.Load(),
		},
		Sequencing: SeqMetrics{
			RequestsSent:      m.requestsSent.Load(),
			RequestsMisrouted: m.requestsMisrouted.Load(),
			Assigned:          m.assigned.Load(),
			Reassigned:        m.reassigned.Load(),
		},
		Delivery: DeliveryStats{
			Submitted: m.submitted.Load(),
			Delivered: m.delivered.Load(),
		},
		Network: NetworkMetrics{
			Broadcasts:   m.broadcasts.Load(),
			SendFailures: m.sendFailures.Load(),
		},
	}
}

// WriteSnapshot writes the snapshot as indented JSON. An empty path is a no-op.
func (m *Metrics) WriteSnapshot(path, nodeID string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.Snapshot(nodeID), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
