package node

import (
	"fmt"
	"sync"
	"time"

	"github.com/adamgarcia4/goLearning/seqcast/multicast"
)

// Column names one of the three observer views of a node.
type Column string

const (
	ColumnSent     Column = "sent"
	ColumnReceived Column = "received"
	ColumnReady    Column = "ready"
)

// Columns lists the journal columns in display order.
var Columns = []Column{ColumnSent, ColumnReceived, ColumnReady}

// ParseColumn maps a name to a Column.
func ParseColumn(s string) (Column, error) {
	for _, c := range Columns {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown journal column %q", s)
}

// JournalEntry is one observer notification.
type JournalEntry struct {
	At      time.Time         `json:"at"`
	Seq     uint64            `json:"seq,omitempty"`
	Message multicast.Message `json:"message"`
}

// Format renders an entry the way the column displays it.
func (e JournalEntry) Format(c Column) string {
	switch c {
	case ColumnReceived:
		return fmt.Sprintf("[%s] %s", e.At.Format(multicast.TimestampLayout), e.Message.Display())
	case ColumnReady:
		return fmt.Sprintf("[%s] SEQ %d: %s", e.At.Format(multicast.TimestampLayout), e.Seq, e.Message.Display())
	default:
		return e.Message.Payload
	}
}

// Journal is a thread-safe record of the most recent entries per column.
// It implements multicast.Observer.
type Journal struct {
	mu      sync.RWMutex
	maxSize int
	columns map[Column][]JournalEntry
}

// NewJournal creates a journal keeping at most maxSize entries per column
func NewJournal(maxSize int) *Journal {
	return &Journal{
		maxSize: maxSize,
		columns: make(map[Column][]JournalEntry, len(Columns)),
	}
}

func (j *Journal) OnSent(m multicast.Message) {
	j.add(ColumnSent, JournalEntry{At: time.Now(), Message: m})
}

func (j *Journal) OnReceived(at time.Time, m multicast.Message) {
	j.add(ColumnReceived, JournalEntry{At: at, Message: m})
}

func (j *Journal) OnDelivered(seq uint64, m multicast.Message) {
	j.add(ColumnReady, JournalEntry{At: time.Now(), Seq: seq, Message: m})
}

// Entries returns a copy of a column, oldest first
func (j *Journal) Entries(c Column) []JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entries := j.columns[c]
	result := make([]JournalEntry, len(entries))
	copy(result, entries)
	return result
}

// Len returns the number of entries currently held in a column
func (j *Journal) Len(c Column) int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.columns[c])
}

func (j *Journal) add(c Column, e JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := append(j.columns[c], e)
	// Keep only the last maxSize entries
	if len(entries) > j.maxSize {
		entries = entries[len(entries)-j.maxSize:]
	}
	j.columns[c] = entries
}
