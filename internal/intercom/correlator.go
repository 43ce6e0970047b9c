package intercom

import (
	"sync"
	"sync/atomic"
)

// correlator matches inbound response frames to outstanding requests.
//
// Request IDs are allocated from a monotonic counter and never reused for
// the lifetime of the session, including across reconnects. Each pending
// request owns a buffered channel of capacity one, so a response is
// delivered exactly once and never blocks the listener.
type correlator struct {
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *Frame
}

func newCorrelator() *correlator {
	return &correlator{
		pending: make(map[int64]chan *Frame),
	}
}

// allocate returns the next request ID.
func (c *correlator) allocate() int64 {
	return c.nextID.Add(1)
}

// register creates a pending slot for the given request ID.
func (c *correlator) register(id int64) chan *Frame {
	ch := make(chan *Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// resolve delivers a response frame to its waiting caller. The check and
// removal happen atomically, so a frame resolves a request at most once;
// duplicates and responses for already timed-out requests report false
// and fall through to the session's other routing rules.
func (c *correlator) resolve(f *Frame) bool {
	if f.ID == nil {
		return false
	}

	c.mu.Lock()
	ch, ok := c.pending[*f.ID]
	if ok {
		delete(c.pending, *f.ID)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	ch <- f
	return true
}

// drop abandons a pending slot after a timeout or cancellation. A late
// response for the dropped ID no longer correlates.
func (c *correlator) drop(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// abandonAll closes every pending slot. Waiting callers observe the
// closed channel and fail with ErrNotConnected instead of running out
// their full timeout against a dead connection.
func (c *correlator) abandonAll() {
	c.mu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}

// pendingCount reports the number of in-flight requests.
func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
