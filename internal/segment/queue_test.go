package segment

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(context.Background(), Segment{Seq: uint64(i)}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if q.Len() != 3 || q.Cap() != 4 {
		t.Fatalf("len=%d cap=%d", q.Len(), q.Cap())
	}
	for i := 1; i <= 3; i++ {
		seg, err := q.Dequeue(time.Second)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if seg.Seq != uint64(i) {
			t.Fatalf("got seq %d, want %d", seg.Seq, i)
		}
	}
}

func TestQueueRejectsOutOfOrder(t *testing.T) {
	q := NewQueue(4)
	if err := q.Enqueue(context.Background(), Segment{Seq: 2}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	_ = q.Enqueue(context.Background(), Segment{Seq: 1})
	if err := q.Enqueue(context.Background(), Segment{Seq: 1}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for repeat, got %v", err)
	}
}

func TestQueueBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	if err := q.Enqueue(context.Background(), Segment{Seq: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, Segment{Seq: 2}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected back-pressure, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), Segment{Seq: 2}) }()
	if _, err := q.Dequeue(time.Second); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked enqueue failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("enqueue did not resume after dequeue")
	}
}

func TestQueueDequeueTimeout(t *testing.T) {
	q := NewQueue(1)
	if _, err := q.Dequeue(10 * time.Millisecond); !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("expected ErrQueueTimeout, got %v", err)
	}
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	q := NewQueue(2)
	_ = q.Enqueue(context.Background(), Segment{Seq: 1})
	_ = q.Enqueue(context.Background(), Segment{Seq: 2})
	q.Close()
	q.Close()

	if err := q.Enqueue(context.Background(), Segment{Seq: 3}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	for i := 1; i <= 2; i++ {
		seg, err := q.Dequeue(time.Second)
		if err != nil || seg.Seq != uint64(i) {
			t.Fatalf("drain %d: seq=%d err=%v", i, seg.Seq, err)
		}
	}
	if _, err := q.Dequeue(time.Second); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after drain, got %v", err)
	}
}

func TestQueueCloseReleasesBlockedEnqueue(t *testing.T) {
	q := NewQueue(1)
	_ = q.Enqueue(context.Background(), Segment{Seq: 1})
	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), Segment{Seq: 2}) }()
	time.Sleep(20 * time.Millisecond)
	q.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not release blocked enqueue")
	}
}

func TestQueueResumeAfter(t *testing.T) {
	q := NewQueue(2)
	q.ResumeAfter(41)
	if err := q.Enqueue(context.Background(), Segment{Seq: 1}); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for a repeated number, got %v", err)
	}
	if err := q.Enqueue(context.Background(), Segment{Seq: 42}); err != nil {
		t.Fatalf("enqueue 42: %v", err)
	}
}
