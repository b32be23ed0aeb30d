package node

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/seqcast/multicast"
	"github.com/adamgarcia4/goLearning/seqcast/transport"
	"github.com/adamgarcia4/goLearning/seqcast/wire"
)

// delivered records the ready column of one node.
type delivered struct {
	mu   sync.Mutex
	seqs []uint64
	msgs []multicast.Message
}

func (d *delivered) OnSent(multicast.Message)                {}
func (d *delivered) OnReceived(time.Time, multicast.Message) {}
func (d *delivered) OnDelivered(seq uint64, m multicast.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seqs = append(d.seqs, seq)
	d.msgs = append(d.msgs, m)
}

func (d *delivered) payloads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.msgs))
	for i, m := range d.msgs {
		out[i] = m.Payload
	}
	return out
}

func (d *delivered) numbers() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.seqs...)
}

func testConfig(id, port string, sequencer bool) *Config {
	cfg := DefaultConfig(id)
	cfg.Address = "10.0.0.1"
	cfg.Port = port
	cfg.IsSequencer = sequencer
	cfg.SequencerAddr = "10.0.0.1:1"
	cfg.RelayAddr = "10.0.0.1:9"
	return cfg
}

func newTestNode(t *testing.T, net *transport.Memory, cfg *Config) (*Node, *delivered) {
	t.Helper()
	rec := &delivered{}
	n, err := New(cfg, WithTransport(net), WithObserver(rec))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { _ = n.Stop() })
	return n, rec
}

func seqFrame(n uint64, payload string) []byte {
	return []byte(fmt.Sprintf("SEQ:%d:%s", n, payload))
}

func TestNewRequiresValidConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigRequired)

	cfg := DefaultConfig("")
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrNodeIDRequired)
}

func TestLifecycle(t *testing.T) {
	net := transport.NewMemory()
	n, err := New(testConfig("node-2", "2", false), WithTransport(net))
	require.NoError(t, err)

	assert.ErrorIs(t, n.Stop(), ErrNotRunning)
	_, err = n.Submit(context.Background(), "early")
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, n.Start())
	assert.True(t, n.IsRunning())
	assert.ErrorIs(t, n.Start(), ErrAlreadyRunning)

	require.NoError(t, n.Stop())
	assert.False(t, n.IsRunning())
	assert.ErrorIs(t, n.Start(), ErrStopped)
}

func TestStartFailsWhenAddressTaken(t *testing.T) {
	net := transport.NewMemory()
	newTestNode(t, net, testConfig("node-2", "2", false))

	other, err := New(testConfig("node-3", "2", false), WithTransport(net))
	require.NoError(t, err)
	assert.ErrorIs(t, other.Start(), transport.ErrAddressInUse)
}

func TestDeliveryWaitsForGap(t *testing.T) {
	net := transport.NewMemory()
	n, rec := newTestNode(t, net, testConfig("node-2", "2", false))
	ctx := context.Background()

	n.handleFrame(ctx, seqFrame(5, "x"))
	assert.Empty(t, rec.numbers())
	assert.Equal(t, []uint64{5}, n.Status().Pending)
	assert.Equal(t, uint64(1), n.Status().NextExpected)

	for _, seq := range []uint64{3, 1, 4} {
		n.handleFrame(ctx, seqFrame(seq, fmt.Sprintf("m%d", seq)))
	}
	assert.Equal(t, []uint64{1}, rec.numbers())

	n.handleFrame(ctx, seqFrame(2, "m2"))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, rec.numbers())
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "x"}, rec.payloads())
	assert.Empty(t, n.Status().Pending)
}

func TestDuplicateSeqDeliveredOnce(t *testing.T) {
	net := transport.NewMemory()
	n, rec := newTestNode(t, net, testConfig("node-2", "2", false))
	ctx := context.Background()

	n.handleFrame(ctx, seqFrame(1, "a"))
	n.handleFrame(ctx, seqFrame(2, "b"))
	n.handleFrame(ctx, seqFrame(3, "y"))
	n.handleFrame(ctx, seqFrame(3, "y"))

	assert.Equal(t, []uint64{1, 2, 3}, rec.numbers())
	assert.Equal(t, 3, n.Journal().Len(ColumnReceived))
	assert.Equal(t, uint64(1), n.Metrics().Snapshot("node-2").Frames.Duplicates)
}

func TestMisroutedRequestIgnored(t *testing.T) {
	net := transport.NewMemory()
	n, rec := newTestNode(t, net, testConfig("node-2", "2", false))

	n.handleFrame(context.Background(), []byte("SEQREQ:Msg#1 from node-3 at 10:00:00.000:nonce"))

	assert.Empty(t, rec.numbers())
	assert.Equal(t, 0, n.Journal().Len(ColumnReceived))
	assert.Equal(t, uint64(1), n.Metrics().Snapshot("node-2").Sequencing.RequestsMisrouted)
}

func TestUndecodableFrameDropped(t *testing.T) {
	net := transport.NewMemory()
	n, rec := newTestNode(t, net, testConfig("node-2", "2", false))

	n.handleFrame(context.Background(), []byte("SEQ:abc:payload"))
	n.handleFrame(context.Background(), []byte{})

	assert.Empty(t, rec.numbers())
	assert.Equal(t, 0, n.Journal().Len(ColumnReceived))
	snap := n.Metrics().Snapshot("node-2")
	assert.Equal(t, uint64(2), snap.Frames.DecodeFailures)
	assert.Equal(t, uint64(2), snap.Frames.Received)
}

func TestRawForwardedToSequencer(t *testing.T) {
	net := transport.NewMemory()
	n, _ := newTestNode(t, net, testConfig("node-2", "2", false))

	var mu sync.Mutex
	var got []string
	seq, err := net.NewServer("10.0.0.1:1", func(_ context.Context, frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(frame))
	})
	require.NoError(t, err)
	require.NoError(t, seq.Start())
	defer seq.Stop()

	payload := "Msg#1 from node-3: hi at 10:00:00.000"
	n.handleFrame(context.Background(), []byte(payload))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Regexp(t, `^SEQREQ:Msg#1 from node-3: hi at 10:00:00\.000:[0-9a-f-]{36}$`, got[0])

	entries := n.Journal().Entries(ColumnReceived)
	require.Len(t, entries, 1)
	assert.Equal(t, payload, entries[0].Message.Payload)
}

func TestSequencerAssignsOnceAndDeliversLocally(t *testing.T) {
	net := transport.NewMemory()
	cfg := testConfig("node-1", "1", true)
	n, rec := newTestNode(t, net, cfg)
	ctx := context.Background()

	raw := "Msg#1 from node-2 at 10:00:00.000"
	n.handleFrame(ctx, []byte(raw))
	n.handleFrame(ctx, []byte("SEQREQ:"+raw+":nonce-1"))
	n.handleFrame(ctx, []byte("SEQREQ:Msg#1 from node-2 at 10:00:01.000:nonce-2"))

	assert.Equal(t, []uint64{1}, rec.numbers())
	st := n.Status()
	assert.True(t, st.Sequencer)
	assert.Equal(t, uint64(1), st.Assigned)
	assert.Equal(t, uint64(2), st.NextExpected)

	snap := n.Metrics().Snapshot("node-1")
	assert.Equal(t, uint64(1), snap.Sequencing.Assigned)
	assert.Equal(t, uint64(2), snap.Sequencing.Reassigned)
	assert.Equal(t, uint64(3), snap.Network.Broadcasts)
}

func TestOversizedRawNotSequenced(t *testing.T) {
	net := transport.NewMemory()
	seqCfg := testConfig("node-1", "1", true)
	seqCfg.Peers = []string{"10.0.0.1:2"}
	n, rec := newTestNode(t, net, seqCfg)
	_, member := newTestNode(t, net, testConfig("node-2", "2", false))
	ctx := context.Background()

	head := "Msg#1 from node-9 at 10:00:00.000"
	big := head + strings.Repeat("x", 1020-len(head))
	n.handleFrame(ctx, []byte(big))

	next := "Msg#2 from node-9 at 10:00:01.000"
	n.handleFrame(ctx, []byte(next))

	assert.Equal(t, []uint64{1}, rec.numbers())
	assert.Equal(t, []string{next}, rec.payloads())
	assert.Equal(t, uint64(1), n.Status().Assigned)
	assert.Equal(t, uint64(1), n.Metrics().Snapshot("node-1").Frames.DecodeFailures)

	require.Eventually(t, func() bool {
		return len(member.numbers()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{next}, member.payloads())
}

func TestSubmitFormatsAndHandsToRelay(t *testing.T) {
	net := transport.NewMemory()
	n, _ := newTestNode(t, net, testConfig("node-2", "2", false))

	// relay address not listening
	_, err := n.Submit(context.Background(), "lost")
	assert.ErrorIs(t, err, transport.ErrUnreachable)

	var mu sync.Mutex
	var got []string
	relaySrv, err := net.NewServer("10.0.0.1:9", func(_ context.Context, frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(frame))
	})
	require.NoError(t, err)
	require.NoError(t, relaySrv.Start())
	defer relaySrv.Stop()

	m, err := n.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Msg#2 from node-2: hello", m.Display())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, m.Payload, got[0])
	assert.Equal(t, 2, n.Journal().Len(ColumnSent))
}

func TestSubmitWithoutRelay(t *testing.T) {
	net := transport.NewMemory()
	cfg := testConfig("node-2", "2", false)
	cfg.RelayAddr = ""
	n, _ := newTestNode(t, net, cfg)

	_, err := n.Submit(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoIngress)
}

func TestRejectedSubmitKeepsNumbering(t *testing.T) {
	net := transport.NewMemory()
	n, _ := newTestNode(t, net, testConfig("node-2", "2", false))

	relaySrv, err := net.NewServer("10.0.0.1:9", func(context.Context, []byte) {})
	require.NoError(t, err)
	require.NoError(t, relaySrv.Start())
	defer relaySrv.Stop()

	_, err = n.Submit(context.Background(), strings.Repeat("x", 1000))
	assert.ErrorIs(t, err, wire.ErrFrameTooLarge)
	assert.Equal(t, 0, n.Journal().Len(ColumnSent))

	m, err := n.Submit(context.Background(), "fits")
	require.NoError(t, err)
	assert.Equal(t, "Msg#1 from node-2: fits", m.Display())
	assert.Equal(t, uint64(1), n.Status().Submitted)
}
