package testutils

import (
	"sync"
	"testing"
	"time"

	"github.com/aretw0/authgate/pkg/domain"
)

// FakeClock is a manually advanced clock for tests.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the frozen instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the distance between t and the frozen instant.
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Epoch is the fixed instant most tests start from.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Context returns a context captured at Epoch.
func Context(t *testing.T, id, hash string) domain.Context {
	t.Helper()
	return domain.NewContext(id, hash, Epoch)
}
