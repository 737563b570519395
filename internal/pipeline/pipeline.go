// Package pipeline wires capture, segmentation, recognition and delivery
// into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"livesub/internal/asr"
	"livesub/internal/audio"
	"livesub/internal/metrics"
	"livesub/internal/segment"
	"livesub/internal/sink"
	"livesub/internal/translate"
	"livesub/internal/vad"
)

// ErrSourceUnavailable reports that the sample source could not be opened or
// failed mid-stream. It is the only error that ends a run abnormally.
var ErrSourceUnavailable = errors.New("audio source unavailable")

// Options configures a Pipeline.
type Options struct {
	Source     audio.Source
	Detector   vad.Detector
	Recognizer asr.Recognizer
	Translator translate.Translator
	Fanout     *sink.Fanout

	Segment        segment.Config
	QueueCapacity  int
	ReadTimeout    time.Duration
	DequeueTimeout time.Duration
	// StallTimeout ends the run with ErrSourceUnavailable when no frame
	// arrives for this long. Zero disables the check.
	StallTimeout time.Duration

	Language   string
	SourceLang string
	TargetLang string
	MinChars   int

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Stats is a point-in-time view of a running pipeline.
type Stats struct {
	State      string  `json:"state"`
	FramesRead uint64  `json:"frames_read"`
	AudioSec   float64 `json:"audio_sec"`
	Segments   uint64  `json:"segments"`
	LastSeq    uint64  `json:"last_seq"`
	Results    uint64  `json:"results"`
	QueueDepth int     `json:"queue_depth"`
}

// Pipeline runs one capture goroutine feeding the accumulator and one worker
// goroutine draining the queue.
type Pipeline struct {
	source       audio.Source
	acc          *segment.Accumulator
	queue        *segment.Queue
	worker       *Worker
	readTimeout  time.Duration
	stallTimeout time.Duration
	sampleRate   int
	logger       *logrus.Logger
	metrics      *metrics.Metrics

	state    atomic.Int32
	frames   atomic.Uint64
	audio    atomic.Int64 // nanoseconds of audio read
	segments atomic.Uint64
	lastSeq  atomic.Uint64
}

// New assembles a pipeline from opts.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fanout := opts.Fanout
	if fanout == nil {
		fanout = sink.NewFanout(logger, opts.Metrics)
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 500 * time.Millisecond
	}
	q := segment.NewQueue(opts.QueueCapacity)
	return &Pipeline{
		source: opts.Source,
		acc:    segment.NewAccumulator(opts.Segment, opts.Detector, q, logger, opts.Metrics),
		queue:  q,
		worker: &Worker{
			Queue:      q,
			Recognizer: opts.Recognizer,
			Translator: opts.Translator,
			Fanout:     fanout,
			Language:   opts.Language,
			SourceLang: opts.SourceLang,
			TargetLang: opts.TargetLang,
			MinChars:   opts.MinChars,
			Poll:       opts.DequeueTimeout,
			Logger:     logger,
			Metrics:    opts.Metrics,
		},
		readTimeout:  readTimeout,
		stallTimeout: opts.StallTimeout,
		sampleRate:   opts.Segment.SampleRate,
		logger:       logger,
		metrics:      opts.Metrics,
	}
}

// ResumeAfter continues sequence numbering after seq, so results from a
// rebuilt pipeline never repeat earlier numbers. Call it before Run.
func (p *Pipeline) ResumeAfter(seq uint64) {
	p.acc.ResumeAfter(seq)
	p.queue.ResumeAfter(seq)
	p.lastSeq.Store(seq)
}

// Run captures until ctx is cancelled or the source is exhausted, then
// flushes the open segment and waits for every queued segment to be
// delivered. The source is closed on every path, and so is the recognizer
// when it implements io.Closer. A Pipeline runs once.
func (p *Pipeline) Run(ctx context.Context) error {
	defer func() {
		if c, ok := p.worker.Recognizer.(io.Closer); ok {
			if err := c.Close(); err != nil {
				p.logger.Warnf("close recognizer: %v", err)
			}
		}
	}()
	if err := p.source.Open(ctx); err != nil {
		_ = p.source.Close()
		p.queue.Close()
		p.state.Store(int32(segment.Closed))
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var g errgroup.Group
	g.Go(func() error { return p.capture(ctx) })
	// The worker outlives cancellation so queued segments are not lost.
	g.Go(func() error { return p.worker.Run(context.WithoutCancel(ctx)) })
	return g.Wait()
}

// Stats reports progress. Safe to call from any goroutine.
func (p *Pipeline) Stats() Stats {
	return Stats{
		State:      segment.State(p.state.Load()).String(),
		FramesRead: p.frames.Load(),
		AudioSec:   time.Duration(p.audio.Load()).Seconds(),
		Segments:   p.segments.Load(),
		LastSeq:    p.lastSeq.Load(),
		Results:    p.worker.Delivered(),
		QueueDepth: p.queue.Len(),
	}
}

func (p *Pipeline) capture(ctx context.Context) (err error) {
	defer p.queue.Close()
	defer func() {
		if cerr := p.source.Close(); cerr != nil {
			p.logger.Warnf("close audio source: %v", cerr)
		}
	}()
	// Enqueue may wait for the worker; it must not be abandoned on stop.
	stepCtx := context.WithoutCancel(ctx)

	lastFrame := time.Now()
	for {
		if ctx.Err() != nil {
			p.logger.Info("stopping capture")
			return p.flush(stepCtx)
		}
		f, err := p.source.Read(ctx, p.readTimeout)
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrTimeout):
			if p.stallTimeout > 0 && time.Since(lastFrame) >= p.stallTimeout {
				p.logger.Errorf("no audio for %s", time.Since(lastFrame).Round(time.Millisecond))
				return errors.Join(fmt.Errorf("%w: no audio for %s", ErrSourceUnavailable, p.stallTimeout), p.flush(stepCtx))
			}
			continue
		case errors.Is(err, io.EOF):
			p.logger.Info("audio source exhausted")
			return p.flush(stepCtx)
		case ctx.Err() != nil:
			return p.flush(stepCtx)
		default:
			p.logger.Errorf("audio source failed: %v", err)
			return errors.Join(fmt.Errorf("%w: %v", ErrSourceUnavailable, err), p.flush(stepCtx))
		}
		lastFrame = time.Now()
		p.frames.Add(1)
		p.audio.Add(int64(f.Duration(p.sampleRate)))
		p.metrics.FrameRead()

		if err := p.acc.Step(stepCtx, f); err != nil && !errors.Is(err, segment.ErrDetection) {
			return err
		}
		p.sync()
	}
}

func (p *Pipeline) flush(ctx context.Context) error {
	err := p.acc.Close(ctx)
	p.sync()
	if err != nil {
		return fmt.Errorf("flush segment: %w", err)
	}
	return nil
}

func (p *Pipeline) sync() {
	p.state.Store(int32(p.acc.State()))
	p.segments.Store(p.acc.Enqueued())
	p.lastSeq.Store(p.acc.LastSeq())
	p.metrics.SetQueueDepth(p.queue.Len())
}
