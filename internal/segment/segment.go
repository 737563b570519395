// Package segment turns a stream of audio frames into utterance segments and
// hands them to a bounded queue for recognition.
package segment

import (
	"errors"
	"time"
)

var (
	// ErrClosed is returned by Accumulator.Step after Close.
	ErrClosed = errors.New("segment: accumulator closed")
	// ErrDetection wraps activity detector failures.
	ErrDetection = errors.New("segment: detection failed")
	// ErrQueueClosed is returned by Enqueue after Close and by Dequeue once
	// the queue is closed and drained.
	ErrQueueClosed = errors.New("segment: queue closed")
	// ErrQueueTimeout is returned by Dequeue when nothing arrived in time.
	ErrQueueTimeout = errors.New("segment: dequeue timeout")
	// ErrOutOfOrder is returned by Enqueue when a sequence number is skipped
	// or repeated.
	ErrOutOfOrder = errors.New("segment: sequence out of order")
)

// State of the accumulator.
type State int

const (
	Idle State = iota
	Speaking
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Speaking:
		return "speaking"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Segment is one contiguous utterance. Samples are owned by the segment once
// it is enqueued.
type Segment struct {
	Seq        uint64
	Samples    []float32
	SampleRate int
	Forced     bool // closed at the maximum duration
	Final      bool // flushed on shutdown
}

// Duration returns the playback length of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Config bounds segmentation. Lengths are in samples.
type Config struct {
	SampleRate      int
	MergeGap        int
	Silence         time.Duration
	MinSamples      int
	MaxSamples      int
	WindowSamples   int
	DropShortOnStop bool
}

// ConfigFromMillis converts millisecond settings to a Config.
func ConfigFromMillis(sampleRate, mergeGapMS, silenceMS, minMS, maxMS, windowMS int) Config {
	samples := func(ms int) int { return sampleRate * ms / 1000 }
	return Config{
		SampleRate:    sampleRate,
		MergeGap:      samples(mergeGapMS),
		Silence:       time.Duration(silenceMS) * time.Millisecond,
		MinSamples:    samples(minMS),
		MaxSamples:    samples(maxMS),
		WindowSamples: samples(windowMS),
	}
}
