package vad

import "math"

// EnergyDetector marks fixed-length frames as speech when their RMS level
// reaches a threshold.
type EnergyDetector struct {
	frameMS    int
	threshold  float64
	minSpeech  int // frames
	minSilence int // frames
}

// NewEnergyDetector returns an RMS detector. Zero fields fall back to 20 ms
// frames and a 0.02 threshold.
func NewEnergyDetector(cfg Config) *EnergyDetector {
	frameMS := cfg.FrameMS
	if frameMS <= 0 {
		frameMS = 20
	}
	thresh := cfg.EnergyThresh
	if thresh <= 0 {
		thresh = 0.02
	}
	return &EnergyDetector{
		frameMS:    frameMS,
		threshold:  thresh,
		minSpeech:  msToFrames(cfg.MinSpeechMS, frameMS),
		minSilence: msToFrames(cfg.MinSilenceMS, frameMS),
	}
}

func (d *EnergyDetector) Detect(window []float32, sampleRate int) ([]Range, error) {
	frameLen := sampleRate * d.frameMS / 1000
	if frameLen <= 0 {
		return nil, nil
	}
	n := len(window) / frameLen
	flags := make([]bool, n)
	for i := range n {
		flags[i] = rms(window[i*frameLen:(i+1)*frameLen]) >= d.threshold
	}
	return rangesFromFrames(flags, frameLen, d.minSpeech, d.minSilence), nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
