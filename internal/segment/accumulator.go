package segment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"livesub/internal/audio"
	"livesub/internal/metrics"
	"livesub/internal/vad"
)

// Enqueuer receives closed segments. Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, seg Segment) error
}

// Accumulator groups speech ranges reported by a detector into utterance
// segments. It is driven by a single goroutine and is not safe for concurrent
// use.
type Accumulator struct {
	cfg      Config
	detector vad.Detector
	out      Enqueuer
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	state  State
	window []float32
	// consumed is the window offset up to which speech has been appended.
	consumed int
	// lastEnd is the window offset where the previous range ended. It goes
	// negative after a reset so the trailing silence still counts as gap.
	lastEnd    int
	hasLast    bool
	lastSpeech time.Time
	open       []float32
	reset      bool
	seq        uint64
	base       uint64
}

// NewAccumulator returns an Idle accumulator. m may be nil.
func NewAccumulator(cfg Config, detector vad.Detector, out Enqueuer, logger *logrus.Logger, m *metrics.Metrics) *Accumulator {
	if cfg.WindowSamples <= 0 {
		cfg.WindowSamples = cfg.SampleRate * 3
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = cfg.SampleRate * 10
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Accumulator{
		cfg:      cfg,
		detector: detector,
		out:      out,
		logger:   logger,
		metrics:  m,
	}
}

// State reports the current state.
func (a *Accumulator) State() State { return a.state }

// Enqueued returns the number of segments handed to the queue so far.
func (a *Accumulator) Enqueued() uint64 { return a.seq - a.base }

// LastSeq returns the sequence number of the last enqueued segment.
func (a *Accumulator) LastSeq() uint64 { return a.seq }

// ResumeAfter makes the next segment seq+1. Call it before the first Step.
func (a *Accumulator) ResumeAfter(seq uint64) {
	a.seq, a.base = seq, seq
}

// Step appends one frame to the rolling window, re-evaluates it, and closes
// segments as the merge, silence and duration bounds require. A detector
// error discards the window, closes any open segment and returns an error
// wrapping ErrDetection; the accumulator stays usable.
func (a *Accumulator) Step(ctx context.Context, f audio.Frame) error {
	if a.state == Closed {
		return ErrClosed
	}
	now := f.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	a.window = append(a.window, f.Samples...)

	ranges, err := a.detector.Detect(a.window, a.cfg.SampleRate)
	if err != nil {
		a.metrics.DetectionFailed()
		a.logger.Warnf("activity detection failed, discarding %d buffered samples: %v", len(a.window), err)
		a.resetWindow()
		closeErr := a.toIdle(ctx)
		return errors.Join(fmt.Errorf("%w: %v", ErrDetection, err), closeErr)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	speech := false
	for _, r := range ranges {
		if r.Start < 0 {
			r.Start = 0
		}
		if r.End > len(a.window) {
			r.End = len(a.window)
		}
		if r.End <= a.consumed || r.Len() <= 0 {
			continue
		}
		speech = true
		if err := a.observe(ctx, r, now); err != nil {
			return err
		}
	}

	if a.state == Speaking && !speech && now.Sub(a.lastSpeech) >= a.cfg.Silence {
		a.logger.Debugf("silence for %s, closing segment", now.Sub(a.lastSpeech).Round(time.Millisecond))
		a.resetWindow()
		a.reset = false
		return a.toIdle(ctx)
	}
	if a.reset {
		a.resetWindow()
		a.reset = false
	}
	if over := len(a.window) - a.cfg.WindowSamples; over > 0 {
		a.evict(over)
	}
	return nil
}

// Close flushes the open segment and moves to Closed. The flush ignores the
// minimum duration unless DropShortOnStop is set. Calling Close twice is a
// no-op.
func (a *Accumulator) Close(ctx context.Context) error {
	if a.state == Closed {
		return nil
	}
	err := a.closeOpen(ctx, true)
	a.state = Closed
	a.window = nil
	a.consumed, a.lastEnd, a.hasLast = 0, 0, false
	return err
}

// observe handles one speech range not yet fully consumed.
func (a *Accumulator) observe(ctx context.Context, r vad.Range, now time.Time) error {
	switch a.state {
	case Idle:
		a.state = Speaking
		a.open = nil
	case Speaking:
		// A range starting before the previous end is the same range growing.
		if a.hasLast && r.Start-a.lastEnd > a.cfg.MergeGap {
			if err := a.closeOpen(ctx, false); err != nil {
				return err
			}
		}
	}

	start := r.Start
	if start < a.consumed {
		start = a.consumed
	}
	if err := a.appendSpeech(ctx, a.window[start:r.End]); err != nil {
		return err
	}
	a.consumed = r.End
	a.lastEnd = r.End
	a.hasLast = true
	a.lastSpeech = now
	return nil
}

// appendSpeech grows the open segment, splitting exactly at the maximum
// duration. The remainder seeds the next segment.
func (a *Accumulator) appendSpeech(ctx context.Context, samples []float32) error {
	for len(samples) > 0 {
		take := a.cfg.MaxSamples - len(a.open)
		if take > len(samples) {
			take = len(samples)
		}
		a.open = append(a.open, samples[:take]...)
		samples = samples[take:]
		if len(a.open) >= a.cfg.MaxSamples {
			seg := a.open
			a.open = nil
			if err := a.enqueue(ctx, seg, true, false); err != nil {
				return err
			}
			a.reset = true
		}
	}
	return nil
}

// toIdle closes the open segment through the normal path and goes Idle.
func (a *Accumulator) toIdle(ctx context.Context) error {
	var err error
	if a.state == Speaking {
		err = a.closeOpen(ctx, false)
	}
	a.state = Idle
	a.hasLast = false
	return err
}

func (a *Accumulator) closeOpen(ctx context.Context, final bool) error {
	seg := a.open
	a.open = nil
	if len(seg) == 0 {
		return nil
	}
	short := len(seg) < a.cfg.MinSamples
	if short && (!final || a.cfg.DropShortOnStop) {
		a.metrics.SegmentDiscarded()
		a.logger.Debugf("discarding %.2fs segment below minimum duration", float64(len(seg))/float64(a.cfg.SampleRate))
		return nil
	}
	return a.enqueue(ctx, seg, false, final)
}

// enqueue numbers seg only once the queue accepts it so numbering stays
// contiguous.
func (a *Accumulator) enqueue(ctx context.Context, samples []float32, forced, final bool) error {
	seg := Segment{
		Seq:        a.seq + 1,
		Samples:    samples,
		SampleRate: a.cfg.SampleRate,
		Forced:     forced,
		Final:      final,
	}
	if err := a.out.Enqueue(ctx, seg); err != nil {
		return fmt.Errorf("enqueue segment %d: %w", seg.Seq, err)
	}
	a.seq = seg.Seq
	a.metrics.SegmentEnqueued(seg.Duration().Seconds(), forced)
	a.logger.Debugf("segment %d enqueued (%.2fs, forced=%t, final=%t)", seg.Seq, seg.Duration().Seconds(), forced, final)
	return nil
}

func (a *Accumulator) resetWindow() { a.evict(len(a.window)) }

// evict drops the oldest n samples and shifts offsets accordingly.
func (a *Accumulator) evict(n int) {
	if n <= 0 {
		return
	}
	if n > len(a.window) {
		n = len(a.window)
	}
	a.window = append(a.window[:0], a.window[n:]...)
	a.consumed -= n
	if a.consumed < 0 {
		a.consumed = 0
	}
	a.lastEnd -= n
}
