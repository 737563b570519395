package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"livesub/internal/hook"
)

// ErrHookBusy is returned when the hook queue is full.
var ErrHookBusy = errors.New("hook queue full")

// Hook runs the configured command for each recognized result on a
// background worker so slow commands never stall delivery.
type Hook struct {
	runner *hook.Runner
	logger *logrus.Logger
	jobs   chan hook.Job
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewHook(runner *hook.Runner, queueSize int, logger *logrus.Logger) *Hook {
	if queueSize <= 0 {
		queueSize = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hook{
		runner: runner,
		logger: logger,
		jobs:   make(chan hook.Job, queueSize),
		cancel: cancel,
	}
	h.wg.Add(1)
	go h.work(ctx)
	return h
}

func (h *Hook) work(ctx context.Context) {
	defer h.wg.Done()
	for job := range h.jobs {
		if err := h.runner.Run(ctx, job); err != nil {
			h.logger.Errorf("hook: %v", err)
		}
	}
}

func (h *Hook) OnResult(_ context.Context, r Result) error {
	if r.Failure == FailureRecognition {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if !h.runner.ShouldRun() {
		h.logger.Debugf("hook on cooldown, skipping seq %d", r.Seq)
		return nil
	}
	translated := r.Translated
	if r.Failure != "" {
		translated = "" // placeholder text, not a translation
	}
	select {
	case h.jobs <- hook.Job{Seq: r.Seq, Original: r.Original, Translated: translated, Timestamp: r.Timestamp}:
		return nil
	default:
		return ErrHookBusy
	}
}

// Close runs the queued jobs and stops the worker.
func (h *Hook) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.jobs)
	h.mu.Unlock()
	h.wg.Wait()
	h.cancel()
	return nil
}
