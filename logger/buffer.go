package logger

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time
	Level     logrus.Level
	NodeID    string
	Message   string
}

// LogBuffer is a thread-safe ring of the most recent log entries
type LogBuffer struct {
	entries []LogEntry
	maxSize int
	mu      sync.RWMutex
}

// NewLogBuffer creates a new log buffer
func NewLogBuffer(maxSize int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an entry, dropping the oldest once maxSize is reached
func (lb *LogBuffer) Add(entry LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, entry)
	if len(lb.entries) > lb.maxSize {
		lb.entries = lb.entries[len(lb.entries)-lb.maxSize:]
	}
}

// GetRecent returns the most recent log entries
func (lb *LogBuffer) GetRecent(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if count > len(lb.entries) {
		count = len(lb.entries)
	}
	if count < 0 {
		count = 0
	}

	result := make([]LogEntry, count)
	copy(result, lb.entries[len(lb.entries)-count:])
	return result
}

// GetAll returns all log entries
func (lb *LogBuffer) GetAll() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, len(lb.entries))
	copy(result, lb.entries)
	return result
}

// Clear removes all log entries from the buffer
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries = make([]LogEntry, 0, lb.maxSize)
}

// FormatLogEntry formats a log entry for display
func FormatLogEntry(entry LogEntry) string {
	return fmt.Sprintf("[%s] %-5s %s: %s",
		entry.Timestamp.Format("15:04:05"),
		entry.Level.String(),
		entry.NodeID,
		entry.Message,
	)
}

// BufferHook is a logrus hook copying every entry into a LogBuffer.
// Entries without a node field are attributed to "system".
type BufferHook struct {
	buffer *LogBuffer
}

// NewBufferHook creates a hook feeding buffer
func NewBufferHook(buffer *LogBuffer) *BufferHook {
	return &BufferHook{buffer: buffer}
}

func (h *BufferHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *BufferHook) Fire(e *logrus.Entry) error {
	nodeID := "system"
	if v, ok := e.Data[NodeField]; ok {
		nodeID = fmt.Sprint(v)
	}
	h.buffer.Add(LogEntry{
		Timestamp: e.Time,
		Level:     e.Level,
		NodeID:    nodeID,
		Message:   e.Message,
	})
	return nil
}
