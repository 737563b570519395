// Package sink delivers recognition results to registered listeners.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"livesub/internal/metrics"
)

// Failure kinds carried by a Result whose text is a placeholder.
const (
	FailureRecognition  = "recognition"
	FailureTranslation  = "translation"
	FailureNoTranslator = "no-translator"
)

// Result is the recognized and translated text of one segment.
type Result struct {
	Seq        uint64
	Original   string
	Translated string
	Final      bool
	Failure    string
	Duration   time.Duration // audio length of the segment
	Timestamp  time.Time
}

// Listener consumes results. OnResult is called from a single goroutine in
// sequence order.
type Listener interface {
	OnResult(ctx context.Context, r Result) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, r Result) error

func (f ListenerFunc) OnResult(ctx context.Context, r Result) error { return f(ctx, r) }

type entry struct {
	name string
	l    Listener
}

// Fanout delivers each result to every listener in registration order. A
// failing or panicking listener is logged and skipped; it never prevents
// delivery to the others.
type Fanout struct {
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	listeners []entry
}

// NewFanout returns an empty fan-out. m may be nil.
func NewFanout(logger *logrus.Logger, m *metrics.Metrics) *Fanout {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fanout{logger: logger, metrics: m}
}

// Register adds l under name, used in logs and metrics.
func (f *Fanout) Register(name string, l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, entry{name: name, l: l})
}

// Len returns the number of registered listeners.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}

// Deliver hands r to every listener.
func (f *Fanout) Deliver(ctx context.Context, r Result) {
	f.mu.RLock()
	listeners := append([]entry(nil), f.listeners...)
	f.mu.RUnlock()

	for _, e := range listeners {
		if err := f.deliverOne(ctx, e, r); err != nil {
			f.metrics.ListenerFailed(e.name)
			f.logger.WithFields(logrus.Fields{"listener": e.name, "seq": r.Seq}).Errorf("listener failed: %v", err)
		}
	}
	f.metrics.ResultDelivered()
}

func (f *Fanout) deliverOne(ctx context.Context, e entry, r Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return e.l.OnResult(ctx, r)
}

// Close closes every listener implementing io.Closer, in reverse
// registration order.
func (f *Fanout) Close() error {
	f.mu.Lock()
	listeners := f.listeners
	f.listeners = nil
	f.mu.Unlock()

	var errs []error
	for i := len(listeners) - 1; i >= 0; i-- {
		if c, ok := listeners[i].l.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", listeners[i].name, err))
			}
		}
	}
	return errors.Join(errs...)
}
