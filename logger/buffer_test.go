package logger

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBufferKeepsMostRecent(t *testing.T) {
	lb := NewLogBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		lb.Add(LogEntry{Timestamp: time.Now(), Message: msg})
	}

	all := lb.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].Message)
	assert.Equal(t, "d", all[2].Message)

	recent := lb.GetRecent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Message)

	assert.Len(t, lb.GetRecent(10), 3)

	lb.Clear()
	assert.Empty(t, lb.GetAll())
}

func TestBufferHookCapturesNodeField(t *testing.T) {
	lb := NewLogBuffer(10)
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	l.AddHook(NewBufferHook(lb))

	l.WithField(NodeField, "node-2").Warn("peer unreachable")
	l.Info("boot")

	all := lb.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "node-2", all[0].NodeID)
	assert.Equal(t, logrus.WarnLevel, all[0].Level)
	assert.Equal(t, "peer unreachable", all[0].Message)
	assert.Equal(t, "system", all[1].NodeID)
	assert.Contains(t, FormatLogEntry(all[0]), "node-2: peer unreachable")
}

func TestMultiOutputFansOut(t *testing.T) {
	var a, b bytes.Buffer
	out := &multiOutput{outputs: []io.Writer{&a, &b}}

	n, err := out.Write([]byte("line\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "line\n", a.String())
	assert.Equal(t, "line\n", b.String())
}

func TestAddRemoveOutput(t *testing.T) {
	var out bytes.Buffer
	if globalLogger == nil {
		assert.ErrorIs(t, AddOutput(&out), errNotInitialized)
		assert.ErrorIs(t, RemoveOutput(&out), errNotInitialized)
	}

	Init("test", false)
	require.NoError(t, SetLevel("info"))
	require.NoError(t, AddOutput(&out))

	Infof("assigned seq %d", 7)
	assert.Contains(t, out.String(), "assigned seq 7")
	assert.Contains(t, out.String(), "component=test")

	require.NoError(t, RemoveOutput(&out))
	before := out.Len()
	Warnf("after detach")
	assert.Equal(t, before, out.Len())
	assert.NotContains(t, out.String(), "after detach")
}
