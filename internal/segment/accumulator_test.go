package segment

import (
	"context"
	"errors"
	"testing"
	"time"

	"livesub/internal/audio"
	"livesub/internal/logging"
	"livesub/internal/vad"
)

const (
	testRate  = 16000
	testFrame = 320 // 20 ms
)

type recorder struct {
	segs []Segment
}

func (r *recorder) Enqueue(_ context.Context, seg Segment) error {
	r.segs = append(r.segs, seg)
	return nil
}

// stream feeds synthetic audio on a stream clock.
type stream struct {
	t     *testing.T
	acc   *Accumulator
	clock time.Time
}

func newStream(t *testing.T, acc *Accumulator) *stream {
	return &stream{t: t, acc: acc, clock: time.Unix(1_700_000_000, 0)}
}

func (s *stream) feed(ms int, speech bool) {
	s.t.Helper()
	for range ms / 20 {
		frame := make([]float32, testFrame)
		if speech {
			for i := range frame {
				if i%2 == 0 {
					frame[i] = 0.3
				} else {
					frame[i] = -0.3
				}
			}
		}
		if err := s.acc.Step(context.Background(), audio.Frame{Samples: frame, Timestamp: s.clock}); err != nil {
			s.t.Fatalf("step: %v", err)
		}
		s.clock = s.clock.Add(20 * time.Millisecond)
	}
}

func defaultConfig() Config {
	return ConfigFromMillis(testRate, 500, 1500, 2000, 10000, 3000)
}

func newEnergyAccumulator(cfg Config, out Enqueuer) *Accumulator {
	det := vad.NewEnergyDetector(vad.Config{FrameMS: 20, MinSpeechMS: 20, MinSilenceMS: 20})
	return NewAccumulator(cfg, det, out, logging.NewTestLogger(), nil)
}

func TestShortGapIsMergedIntoOneSegment(t *testing.T) {
	rec := &recorder{}
	acc := newEnergyAccumulator(defaultConfig(), rec)
	s := newStream(t, acc)

	s.feed(1000, true)
	s.feed(300, false)
	s.feed(1500, true)
	s.feed(2000, false)

	if len(rec.segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(rec.segs))
	}
	seg := rec.segs[0]
	if seg.Seq != 1 {
		t.Fatalf("seq = %d, want 1", seg.Seq)
	}
	if got := len(seg.Samples); got != 40000 {
		t.Fatalf("segment has %d samples, want 40000 (2.5s)", got)
	}
	if seg.Duration() != 2500*time.Millisecond {
		t.Fatalf("duration = %s", seg.Duration())
	}
	if acc.State() != Idle {
		t.Fatalf("state = %s, want idle", acc.State())
	}
}

func TestShortSegmentDiscardedAndSequenceNotConsumed(t *testing.T) {
	rec := &recorder{}
	acc := newEnergyAccumulator(defaultConfig(), rec)
	s := newStream(t, acc)

	s.feed(1000, true)
	s.feed(2000, false)
	s.feed(1000, true)

	if len(rec.segs) != 0 {
		t.Fatalf("short segment should be discarded, got %d segments", len(rec.segs))
	}
	if acc.State() != Speaking {
		t.Fatalf("state = %s, want speaking", acc.State())
	}
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rec.segs) != 1 {
		t.Fatalf("expected shutdown flush, got %d segments", len(rec.segs))
	}
	seg := rec.segs[0]
	if seg.Seq != 1 || !seg.Final {
		t.Fatalf("unexpected flush segment seq=%d final=%t", seg.Seq, seg.Final)
	}
	if len(seg.Samples) != 16000 {
		t.Fatalf("flushed %d samples, want 16000", len(seg.Samples))
	}
}

func TestDropShortOnStop(t *testing.T) {
	rec := &recorder{}
	cfg := defaultConfig()
	cfg.DropShortOnStop = true
	acc := newEnergyAccumulator(cfg, rec)
	s := newStream(t, acc)

	s.feed(1000, true)
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rec.segs) != 0 {
		t.Fatalf("expected short flush to be dropped, got %d", len(rec.segs))
	}
}

func TestContinuousSpeechIsSplitAtMaxDuration(t *testing.T) {
	rec := &recorder{}
	acc := newEnergyAccumulator(defaultConfig(), rec)
	s := newStream(t, acc)

	s.feed(10000, true)
	if len(rec.segs) != 1 || acc.State() != Speaking {
		t.Fatalf("after 10s: segments=%d state=%s", len(rec.segs), acc.State())
	}
	s.feed(10000, true)
	if len(rec.segs) != 2 || acc.State() != Speaking {
		t.Fatalf("after 20s: segments=%d state=%s", len(rec.segs), acc.State())
	}
	s.feed(5000, true)
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(rec.segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(rec.segs))
	}
	for i, want := range []int{160000, 160000, 80000} {
		seg := rec.segs[i]
		if seg.Seq != uint64(i+1) {
			t.Fatalf("segment %d has seq %d", i, seg.Seq)
		}
		if len(seg.Samples) != want {
			t.Fatalf("segment %d has %d samples, want %d", i, len(seg.Samples), want)
		}
	}
	if !rec.segs[0].Forced || !rec.segs[1].Forced || rec.segs[2].Forced {
		t.Fatalf("forced flags wrong: %+v %+v %+v", rec.segs[0].Forced, rec.segs[1].Forced, rec.segs[2].Forced)
	}
	if acc.State() != Closed {
		t.Fatalf("state = %s, want closed", acc.State())
	}
}

func TestLongGapSplitsSegments(t *testing.T) {
	rec := &recorder{}
	acc := newEnergyAccumulator(defaultConfig(), rec)
	s := newStream(t, acc)

	s.feed(2200, true)
	s.feed(800, false)
	s.feed(2200, true)
	if len(rec.segs) != 1 {
		t.Fatalf("gap above merge threshold should close the first segment, got %d", len(rec.segs))
	}
	s.feed(1600, false)
	if len(rec.segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(rec.segs))
	}
	for i, seg := range rec.segs {
		if len(seg.Samples) != 35200 {
			t.Fatalf("segment %d has %d samples, want 35200", i, len(seg.Samples))
		}
	}
}

func TestStepAfterCloseFails(t *testing.T) {
	acc := newEnergyAccumulator(defaultConfig(), &recorder{})
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	err := acc.Step(context.Background(), audio.Frame{Samples: make([]float32, testFrame)})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// scripted returns ranges computed from the window length, or an error.
type scripted struct {
	fn func(n int) ([]vad.Range, error)
}

func (s scripted) Detect(window []float32, _ int) ([]vad.Range, error) {
	return s.fn(len(window))
}

func rampFrame(from, n int) audio.Frame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(from + i)
	}
	return audio.Frame{Samples: samples, Timestamp: time.Unix(0, 0)}
}

func smallConfig() Config {
	return Config{
		SampleRate:    1000,
		MergeGap:      500,
		Silence:       1500 * time.Millisecond,
		MinSamples:    2000,
		MaxSamples:    10000,
		WindowSamples: 100000,
	}
}

func TestMultipleRangesInOneEvaluation(t *testing.T) {
	rec := &recorder{}
	det := scripted{fn: func(int) ([]vad.Range, error) {
		// Deliberately unsorted.
		return []vad.Range{{Start: 4200, End: 5000}, {Start: 0, End: 1000}, {Start: 1200, End: 3500}}, nil
	}}
	acc := NewAccumulator(smallConfig(), det, rec, logging.NewTestLogger(), nil)
	if err := acc.Step(context.Background(), rampFrame(0, 5000)); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(rec.segs) != 1 {
		t.Fatalf("expected the merged pair to close, got %d segments", len(rec.segs))
	}
	seg := rec.segs[0]
	if len(seg.Samples) != 3300 {
		t.Fatalf("first segment has %d samples, want 3300", len(seg.Samples))
	}
	if seg.Samples[999] != 999 || seg.Samples[1000] != 1200 || seg.Samples[3299] != 3499 {
		t.Fatalf("samples out of order: %v %v %v", seg.Samples[999], seg.Samples[1000], seg.Samples[3299])
	}
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rec.segs) != 2 || len(rec.segs[1].Samples) != 800 || rec.segs[1].Samples[0] != 4200 {
		t.Fatalf("unexpected flush: %+v", rec.segs)
	}
}

func TestGrowingRangeIsNotAppendedTwice(t *testing.T) {
	rec := &recorder{}
	det := scripted{fn: func(n int) ([]vad.Range, error) {
		return []vad.Range{{Start: 0, End: n}}, nil
	}}
	acc := NewAccumulator(smallConfig(), det, rec, logging.NewTestLogger(), nil)
	for i := range 30 {
		if err := acc.Step(context.Background(), rampFrame(i*100, 100)); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rec.segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(rec.segs))
	}
	for i, v := range rec.segs[0].Samples {
		if v != float32(i) {
			t.Fatalf("sample %d = %v, want %d", i, v, i)
		}
	}
	if len(rec.segs[0].Samples) != 3000 {
		t.Fatalf("segment has %d samples, want 3000", len(rec.segs[0].Samples))
	}
}

func TestDetectionFailureClosesOpenSegment(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	det := scripted{fn: func(n int) ([]vad.Range, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return []vad.Range{{Start: 0, End: n}}, nil
	}}
	rec := &recorder{}
	acc := NewAccumulator(smallConfig(), det, rec, logging.NewTestLogger(), nil)

	if err := acc.Step(context.Background(), rampFrame(0, 2500)); err != nil {
		t.Fatalf("step: %v", err)
	}
	err := acc.Step(context.Background(), rampFrame(2500, 100))
	if !errors.Is(err, ErrDetection) {
		t.Fatalf("expected ErrDetection, got %v", err)
	}
	if acc.State() != Idle {
		t.Fatalf("state = %s, want idle", acc.State())
	}
	if len(rec.segs) != 1 || len(rec.segs[0].Samples) != 2500 {
		t.Fatalf("open segment should be kept, got %+v", rec.segs)
	}

	// Recovery: the next evaluation starts from an empty window.
	if err := acc.Step(context.Background(), rampFrame(0, 100)); err != nil {
		t.Fatalf("step after failure: %v", err)
	}
	if acc.State() != Speaking {
		t.Fatalf("state = %s, want speaking", acc.State())
	}
}

func TestDetectionFailureDiscardsShortSegment(t *testing.T) {
	calls := 0
	det := scripted{fn: func(n int) ([]vad.Range, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("boom")
		}
		return []vad.Range{{Start: 0, End: n}}, nil
	}}
	rec := &recorder{}
	acc := NewAccumulator(smallConfig(), det, rec, logging.NewTestLogger(), nil)
	_ = acc.Step(context.Background(), rampFrame(0, 1000))
	if err := acc.Step(context.Background(), rampFrame(1000, 100)); !errors.Is(err, ErrDetection) {
		t.Fatalf("expected ErrDetection, got %v", err)
	}
	if len(rec.segs) != 0 {
		t.Fatalf("short segment should be dropped, got %d", len(rec.segs))
	}
}

func TestEnqueueFailureDoesNotConsumeSequence(t *testing.T) {
	q := NewQueue(1)
	det := scripted{fn: func(n int) ([]vad.Range, error) {
		return []vad.Range{{Start: 0, End: n}}, nil
	}}
	acc := NewAccumulator(smallConfig(), det, q, logging.NewTestLogger(), nil)
	_ = acc.Step(context.Background(), rampFrame(0, 2500))
	q.Close()
	if err := acc.Close(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if acc.Enqueued() != 0 {
		t.Fatalf("enqueued = %d, want 0", acc.Enqueued())
	}
}

func TestWindowStaysBounded(t *testing.T) {
	acc := newEnergyAccumulator(defaultConfig(), &recorder{})
	s := newStream(t, acc)
	s.feed(5000, false)
	if len(acc.window) > defaultConfig().WindowSamples {
		t.Fatalf("window grew to %d samples", len(acc.window))
	}
}

func TestResumeAfterContinuesNumbering(t *testing.T) {
	q := NewQueue(4)
	q.ResumeAfter(7)
	acc := newEnergyAccumulator(defaultConfig(), q)
	acc.ResumeAfter(7)
	s := newStream(t, acc)

	s.feed(2500, true)
	s.feed(2000, false)
	s.feed(2500, true)
	if err := acc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, want := range []uint64{8, 9} {
		seg, err := q.Dequeue(time.Second)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if seg.Seq != want {
			t.Fatalf("seq = %d, want %d", seg.Seq, want)
		}
	}
	if acc.Enqueued() != 2 || acc.LastSeq() != 9 {
		t.Fatalf("enqueued=%d last=%d", acc.Enqueued(), acc.LastSeq())
	}
}
