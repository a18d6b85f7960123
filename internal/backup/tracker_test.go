package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerMarkAndCheck(t *testing.T) {
	tr := NewCancellationTracker()

	assert.False(t, tr.IsCancelled("unknown"))

	tr.MarkCancelled("b1")
	assert.True(t, tr.IsCancelled("b1"))
	assert.False(t, tr.IsCancelled("b2"))

	// Marking again is harmless.
	tr.MarkCancelled("b1")
	assert.True(t, tr.IsCancelled("b1"))
}

func TestTrackerClear(t *testing.T) {
	tr := NewCancellationTracker()
	tr.MarkCancelled("b1")
	tr.Clear("b1")
	assert.False(t, tr.IsCancelled("b1"))

	// Clearing an unknown id is a no-op.
	tr.Clear("never-seen")
}

func TestTrackerExpiry(t *testing.T) {
	tr := NewCancellationTracker()
	tr.ttl = 20 * time.Millisecond

	tr.MarkCancelled("b1")
	assert.True(t, tr.IsCancelled("b1"))

	time.Sleep(40 * time.Millisecond)
	assert.False(t, tr.IsCancelled("b1"))

	// Expired entries are dropped entirely, not just hidden.
	tr.mu.Lock()
	_, present := tr.entries["b1"]
	tr.mu.Unlock()
	assert.False(t, present)
}

func TestTrackerExpiredEntriesPurgedOnWrite(t *testing.T) {
	tr := NewCancellationTracker()
	tr.ttl = 20 * time.Millisecond

	tr.MarkCancelled("old")
	time.Sleep(40 * time.Millisecond)
	tr.MarkCancelled("new")

	tr.mu.Lock()
	_, oldPresent := tr.entries["old"]
	_, newPresent := tr.entries["new"]
	tr.mu.Unlock()

	assert.False(t, oldPresent)
	assert.True(t, newPresent)
}
