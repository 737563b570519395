// Package audio provides the sample sources feeding the segmentation pipeline
// and the PCM helpers shared by recognizers.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Source.Read when no frame arrived in time.
var ErrTimeout = errors.New("audio: read timeout")

// Frame is a block of mono samples normalised to [-1, 1].
type Frame struct {
	Samples   []float32
	Timestamp time.Time
}

// Duration returns the playback length of the frame at sampleRate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(sampleRate)
}

// Source produces frames at a fixed rate. Read returns ErrTimeout when the
// timeout elapses and io.EOF once a finite input is exhausted. Any other
// error means the source is gone.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context, timeout time.Duration) (Frame, error)
	Close() error
}

// SourceConfig describes the stream a source must deliver.
type SourceConfig struct {
	DeviceName   string
	SampleRate   int
	FrameSamples int
	Buffer       int    // frames held between the device callback and Read
	OnDrop       func() // called for every frame dropped under back-pressure
}

// Device describes a capture-capable input device.
type Device struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Channels   int     `json:"channels"`
	SampleRate float64 `json:"sample_rate"`
	LatencyMS  float64 `json:"latency_ms"`
	Default    bool    `json:"default"`
}

// FrameSamples converts a frame length in milliseconds to samples.
func FrameSamples(sampleRate, frameMS int) int {
	return sampleRate * frameMS / 1000
}
