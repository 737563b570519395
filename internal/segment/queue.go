package segment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Queue is a bounded FIFO of segments between one producer and one consumer.
// Enqueue blocks while the queue is full.
type Queue struct {
	ch   chan Segment
	done chan struct{}
	once sync.Once

	mu      sync.Mutex // held for the whole send so Close cannot race it
	closed  bool
	lastSeq uint64
}

// NewQueue returns a queue holding at most capacity segments.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan Segment, capacity),
		done: make(chan struct{}),
	}
}

// ResumeAfter makes seq+1 the next accepted sequence number.
func (q *Queue) ResumeAfter(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastSeq = seq
}

// Enqueue adds seg, waiting for room. Seq must follow the previous segment's.
func (q *Queue) Enqueue(ctx context.Context, seg Segment) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if seg.Seq != q.lastSeq+1 {
		return fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, seg.Seq, q.lastSeq)
	}
	select {
	case q.ch <- seg:
		q.lastSeq = seg.Seq
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns the oldest segment. It returns ErrQueueTimeout when nothing
// arrives within timeout and ErrQueueClosed once closed and drained.
func (q *Queue) Dequeue(timeout time.Duration) (Segment, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case seg, ok := <-q.ch:
		if !ok {
			return Segment{}, ErrQueueClosed
		}
		return seg, nil
	case <-timer.C:
		return Segment{}, ErrQueueTimeout
	}
}

// Close stops accepting segments. Queued segments remain available to
// Dequeue. Close is idempotent.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}

// Len returns the number of queued segments.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
