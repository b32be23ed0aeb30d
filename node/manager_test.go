package node

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/seqcast/transport"
)

func memoryCluster() *ClusterConfig {
	return &ClusterConfig{
		Relay:     "relay:1",
		Transport: transport.KindTCP,
		Sequencer: "a",
		Nodes: []NodeEntry{
			{ID: "a", Address: "a:1"},
			{ID: "b", Address: "b:1"},
			{ID: "c", Address: "c:1"},
		},
	}
}

func startCluster(t *testing.T, cluster *ClusterConfig, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(cluster, opts...)
	require.NoError(t, err)
	require.NoError(t, m.StartAll())
	t.Cleanup(func() { _ = m.StopAll() })
	return m
}

func ready(n *Node) []string {
	entries := n.Journal().Entries(ColumnReady)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message.Payload
	}
	return out
}

func waitReady(t *testing.T, nodes []*Node, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if n.Journal().Len(ColumnReady) != count {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)
}

func TestClusterSameOrderEverywhere(t *testing.T) {
	m := startCluster(t, memoryCluster(), WithSharedTransport(transport.NewMemory()))
	b, err := m.Node("b")
	require.NoError(t, err)
	c, err := m.Node("c")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, sub := range []struct {
		n    *Node
		text string
	}{{b, "hello"}, {c, "world"}} {
		wg.Add(1)
		go func(n *Node, text string) {
			defer wg.Done()
			_, err := n.Submit(context.Background(), text)
			assert.NoError(t, err)
		}(sub.n, sub.text)
	}
	wg.Wait()

	nodes := m.GetNodes()
	waitReady(t, nodes, 2)

	want := ready(nodes[0])
	for _, n := range nodes[1:] {
		assert.Equal(t, want, ready(n), "node %s", n.GetConfig().NodeID)
	}
	for _, n := range nodes {
		entries := n.Journal().Entries(ColumnReady)
		assert.Equal(t, uint64(1), entries[0].Seq)
		assert.Equal(t, uint64(2), entries[1].Seq)
		// each message reported once although it arrives as RAW and as SEQ
		assert.Equal(t, 2, n.Journal().Len(ColumnReceived))
	}
}

func TestSequencerOwnSubmissionIsSequenced(t *testing.T) {
	m := startCluster(t, memoryCluster(), WithSharedTransport(transport.NewMemory()))
	a, err := m.Node("a")
	require.NoError(t, err)

	sent, err := a.Submit(context.Background(), "from the sequencer")
	require.NoError(t, err)

	waitReady(t, m.GetNodes(), 1)
	entries := a.Journal().Entries(ColumnReady)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, sent.Payload, entries[0].Message.Payload)
	assert.Equal(t, uint64(2), a.Status().NextExpected)
	assert.Equal(t, uint64(1), a.Status().Assigned)
}

func TestUnreachablePeerDoesNotBlockOthers(t *testing.T) {
	mem := transport.NewMemory()
	m := startCluster(t, memoryCluster(), WithSharedTransport(mem))
	mem.SetDown("c:1", true)

	b, err := m.Node("b")
	require.NoError(t, err)
	_, err = b.Submit(context.Background(), "partial")
	require.NoError(t, err)

	a, _ := m.Node("a")
	c, _ := m.Node("c")
	waitReady(t, []*Node{a, b}, 1)
	require.Eventually(t, func() bool {
		// the relay's RAW and b's request each trigger a broadcast that misses c
		return a.Metrics().Snapshot("a").Network.SendFailures >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Journal().Len(ColumnReady))
}

func TestStopNodeKeepsJournal(t *testing.T) {
	m := startCluster(t, memoryCluster(), WithSharedTransport(transport.NewMemory()))
	b, _ := m.Node("b")
	_, err := b.Submit(context.Background(), "before")
	require.NoError(t, err)
	waitReady(t, m.GetNodes(), 1)

	require.NoError(t, m.StopNode("c"))
	c, _ := m.Node("c")
	assert.False(t, c.IsRunning())
	assert.Equal(t, 1, c.Journal().Len(ColumnReady))

	_, err = m.Node("zz")
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.NoError(t, m.StopAll())
}

func TestStartAllRollsBack(t *testing.T) {
	mem := transport.NewMemory()
	blocker, err := mem.NewServer("c:1", func(context.Context, []byte) {})
	require.NoError(t, err)
	require.NoError(t, blocker.Start())

	m, err := NewManager(memoryCluster(), WithSharedTransport(mem))
	require.NoError(t, err)
	err = m.StartAll()
	require.ErrorIs(t, err, transport.ErrAddressInUse)
	assert.Empty(t, m.GetNodes())
	assert.Nil(t, m.Relay())

	// relay and the first two nodes released their addresses
	require.NoError(t, blocker.Stop())
	require.NoError(t, m.StartAll())
	assert.NoError(t, m.StopAll())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestClusterOverTCP(t *testing.T) {
	for _, kind := range []string{transport.KindTCP, transport.KindGRPC} {
		t.Run(kind, func(t *testing.T) {
			cluster := &ClusterConfig{
				Relay:       freeAddr(t),
				Transport:   kind,
				Sequencer:   "node-1",
				DialTimeout: 2 * time.Second,
				Nodes: []NodeEntry{
					{ID: "node-1", Address: freeAddr(t)},
					{ID: "node-2", Address: freeAddr(t)},
					{ID: "node-3", Address: freeAddr(t)},
				},
			}
			m := startCluster(t, cluster)

			for i, n := range m.GetNodes() {
				_, err := n.Submit(context.Background(), "over the wire: with colons")
				require.NoError(t, err, "submit %d", i)
			}

			nodes := m.GetNodes()
			waitReady(t, nodes, 3)
			want := ready(nodes[0])
			for _, n := range nodes[1:] {
				assert.Equal(t, want, ready(n))
			}
		})
	}
}
