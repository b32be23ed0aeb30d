package multicast

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestObserveFirstTimeOnly(t *testing.T) {
	c := NewDedupCache()
	raw := Message{Payload: "Msg#1 from node-2 at 10:00:00.000"}
	inSeq := Message{Payload: "Msg#1 from node-2 at 10:00:00.000"}

	assert.True(t, c.Observe(raw))
	assert.False(t, c.Observe(inSeq))
	assert.True(t, c.Seen(raw))
	assert.Equal(t, 1, c.Len())
}

func TestObserveIsIdempotentPerIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewDedupCache()
		origins := []string{"node-1", "node-2", "node-3"}

		type key struct {
			origin  string
			counter uint64
		}
		firsts := make(map[key]int)

		arrivals := rapid.IntRange(1, 60).Draw(t, "arrivals")
		for i := 0; i < arrivals; i++ {
			k := key{
				origin:  rapid.SampledFrom(origins).Draw(t, "origin"),
				counter: rapid.Uint64Range(1, 8).Draw(t, "counter"),
			}
			// same identity, varying presentation timestamp
			at := time.Unix(int64(rapid.IntRange(0, 86399).Draw(t, "ts")), 0)
			if c.Observe(NewMessage(k.origin, k.counter, "", at)) {
				firsts[k]++
			}
		}

		for k, n := range firsts {
			if n != 1 {
				t.Fatalf("identity %v reported first-seen %d times", k, n)
			}
		}
		if c.Len() != len(firsts) {
			t.Fatalf("cache holds %d identities, want %d", c.Len(), len(firsts))
		}
	})
}

func TestObserveConcurrent(t *testing.T) {
	c := NewDedupCache()
	const workers = 16
	const messages = 200

	var firsts atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < messages; i++ {
				m := Message{Payload: fmt.Sprintf("Msg#%d from node-1 at 10:00:00.000", i)}
				if c.Observe(m) {
					firsts.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(messages), firsts.Load())
	assert.Equal(t, messages, c.Len())
}
