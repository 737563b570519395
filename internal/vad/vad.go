// Package vad classifies windows of audio into speech ranges.
//
// A Detector sees the whole rolling window on every call and returns the
// speech ranges inside it as half-open sample offsets relative to the window
// start. Offsets are only meaningful for the window they were computed from.
package vad

import (
	"fmt"
	"strings"
)

// Range is a [Start, End) span of speech within a window.
type Range struct {
	Start int
	End   int
}

// Len returns the number of samples in r.
func (r Range) Len() int { return r.End - r.Start }

// Detector finds speech ranges in a window. Results are ordered by Start and
// do not overlap.
type Detector interface {
	Detect(window []float32, sampleRate int) ([]Range, error)
}

// Config selects and tunes a detector.
type Config struct {
	Engine         string // energy, webrtc
	FrameMS        int
	Aggressiveness int
	EnergyThresh   float64
	MinSpeechMS    int
	MinSilenceMS   int
}

// New builds the detector named by cfg.Engine.
func New(cfg Config) (Detector, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", "energy":
		return NewEnergyDetector(cfg), nil
	case "webrtc":
		return NewWebRTCDetector(cfg)
	default:
		return nil, fmt.Errorf("unknown vad engine %q", cfg.Engine)
	}
}

// rangesFromFrames turns per-frame speech flags into ranges, bridging silent
// runs shorter than minSilence frames and dropping speech runs shorter than
// minSpeech frames.
func rangesFromFrames(flags []bool, frameLen, minSpeech, minSilence int) []Range {
	var out []Range
	start := -1
	silent := 0
	flush := func(endFrame int) {
		if start >= 0 && endFrame-start >= minSpeech {
			out = append(out, Range{Start: start * frameLen, End: endFrame * frameLen})
		}
		start = -1
		silent = 0
	}
	for i, speech := range flags {
		switch {
		case speech && start < 0:
			start = i
			silent = 0
		case speech:
			silent = 0
		case start >= 0:
			silent++
			if silent >= minSilence {
				flush(i - silent + 1)
			}
		}
	}
	if start >= 0 {
		flush(len(flags) - silent)
	}
	return out
}

func msToFrames(ms, frameMS int) int {
	if ms <= 0 || frameMS <= 0 {
		return 1
	}
	return max(1, (ms+frameMS-1)/frameMS)
}
