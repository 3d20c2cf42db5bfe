package history

import (
	"context"
	"sync"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

// MemoryLedger is a fixed-size ring buffer. It lives for the process lifetime only.
type MemoryLedger struct {
	mu    sync.RWMutex
	buf   []models.HistoryEntry
	next  int // slot the next append writes to
	count int
}

func NewMemoryLedger(capacity int) *MemoryLedger {
	if capacity < 1 {
		capacity = DefaultCap
	}
	return &MemoryLedger{buf: make([]models.HistoryEntry, capacity)}
}

func (l *MemoryLedger) Append(_ context.Context, e models.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
	return nil
}

func (l *MemoryLedger) Recent(_ context.Context, n int) ([]models.HistoryEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]models.HistoryEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out, nil
}

func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count, nil
}

func (l *MemoryLedger) Cap() int {
	return len(l.buf)
}
