package backup

import (
	"sync"
	"time"
)

// cancellationTTL bounds how long a cancellation request is remembered.
// Expiry does not imply the run finished; the tracker simply stops asserting
// "cancelled" for stale ids, and the process timeout takes over.
const cancellationTTL = 5 * time.Minute

// CancellationTracker is a time-bounded set of backup ids marked for
// cancellation. The lifecycle manager polls it cooperatively while a dump
// process runs. Entries expire lazily on read and are purged on write.
type CancellationTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func NewCancellationTracker() *CancellationTracker {
	return &CancellationTracker{
		ttl:     cancellationTTL,
		entries: make(map[string]time.Time),
	}
}

// MarkCancelled records a cancellation request for id. Idempotent; marking
// an unknown or already-finished id is harmless.
func (t *CancellationTracker) MarkCancelled(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for k, at := range t.entries {
		if now.Sub(at) > t.ttl {
			delete(t.entries, k)
		}
	}
	t.entries[id] = now
}

// IsCancelled reports whether id has an unexpired cancellation request.
func (t *CancellationTracker) IsCancelled(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.entries[id]
	if !ok {
		return false
	}
	if time.Since(at) > t.ttl {
		delete(t.entries, id)
		return false
	}
	return true
}

// Clear drops the entry for id, used once a run has reached a terminal state.
func (t *CancellationTracker) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}
