package bus

import (
	"sync"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
)

// recentLog is a bounded rolling log of recent messages kept for
// diagnostics. Eviction is strict FIFO.
type recentLog struct {
	mu      sync.Mutex
	entries []protocol.Message
	cap     int
}

func newRecentLog(capacity int) *recentLog {
	if capacity <= 0 {
		capacity = DefaultRecentLogSize
	}
	return &recentLog{cap: capacity}
}

func (l *recentLog) add(msg protocol.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
}

func (l *recentLog) snapshot() []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.Message, len(l.entries))
	copy(out, l.entries)
	return out
}
