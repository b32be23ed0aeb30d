package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/seqcast/transport"
)

type inbox struct {
	mu     sync.Mutex
	frames []string
}

func (i *inbox) handle(_ context.Context, frame []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.frames = append(i.frames, string(frame))
}

func (i *inbox) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.frames)
}

func listen(t *testing.T, net *transport.Memory, addr string) *inbox {
	t.Helper()
	box := &inbox{}
	srv, err := net.NewServer(addr, box.handle)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return box
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{Targets: []string{"a"}})
	assert.ErrorIs(t, err, ErrAddressRequired)

	_, err = New(Config{Addr: "relay"})
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestForwardsToEveryTarget(t *testing.T) {
	net := transport.NewMemory()
	a := listen(t, net, "node-a")
	b := listen(t, net, "node-b")

	r, err := New(Config{Addr: "relay", Targets: []string{"node-a", "node-b"}}, WithTransport(net))
	require.NoError(t, err)
	require.NoError(t, r.Start())
	defer r.Stop()

	require.NoError(t, net.Send(context.Background(), "relay", []byte("Msg#1 from node-a at 10:00:00.000")))

	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Msg#1 from node-a at 10:00:00.000", a.frames[0])
}

func TestUnreachableTargetDoesNotBlockOthers(t *testing.T) {
	net := transport.NewMemory()
	a := listen(t, net, "node-a")
	listen(t, net, "node-b")
	net.SetDown("node-b", true)

	r, err := New(Config{Addr: "relay", Targets: []string{"node-b", "node-a", "node-c"}}, WithTransport(net))
	require.NoError(t, err)
	require.NoError(t, r.Start())

	require.NoError(t, net.Send(context.Background(), "relay", []byte("x")))
	require.Eventually(t, func() bool {
		forwarded, failures := r.Stats()
		return forwarded+failures == 3
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return a.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	forwarded, failures := r.Stats()
	assert.Equal(t, uint64(1), forwarded)
	assert.Equal(t, uint64(2), failures)

	assert.ErrorIs(t, r.Stop(), ErrNotRunning)
}
