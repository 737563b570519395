package sink

import (
	"context"
	"sync"
)

// History keeps the most recent results for status queries.
type History struct {
	mu   sync.Mutex
	size int
	buf  []Result
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 10
	}
	return &History{size: size}
}

func (h *History) OnResult(_ context.Context, r Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = append(h.buf, r)
	if len(h.buf) > h.size {
		h.buf = append(h.buf[:0], h.buf[len(h.buf)-h.size:]...)
	}
	return nil
}

// Snapshot returns the retained results, oldest first.
func (h *History) Snapshot() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Result(nil), h.buf...)
}
