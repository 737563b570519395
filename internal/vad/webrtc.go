//go:build whisper

package vad

import (
	"fmt"

	"livesub/internal/audio"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTCDetector wraps the WebRTC voice activity detector.
type WebRTCDetector struct {
	vad        *webrtcvad.VAD
	frameMS    int
	minSpeech  int
	minSilence int
}

// NewWebRTCDetector returns a detector running WebRTC VAD on 10, 20 or 30 ms frames.
func NewWebRTCDetector(cfg Config) (Detector, error) {
	if cfg.FrameMS != 10 && cfg.FrameMS != 20 && cfg.FrameMS != 30 {
		return nil, fmt.Errorf("vad.frame_ms must be 10, 20, or 30 for webrtc (got %d)", cfg.FrameMS)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}
	if err := v.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	return &WebRTCDetector{
		vad:        v,
		frameMS:    cfg.FrameMS,
		minSpeech:  msToFrames(cfg.MinSpeechMS, cfg.FrameMS),
		minSilence: msToFrames(cfg.MinSilenceMS, cfg.FrameMS),
	}, nil
}

func (d *WebRTCDetector) Detect(window []float32, sampleRate int) ([]Range, error) {
	frameLen := sampleRate * d.frameMS / 1000
	if !d.vad.ValidRateAndFrameLength(sampleRate, frameLen) {
		return nil, fmt.Errorf("invalid frame length %d for sample rate %d", frameLen, sampleRate)
	}
	pcm := audio.Float32ToInt16(window)
	buf := make([]byte, frameLen*2)
	n := len(pcm) / frameLen
	flags := make([]bool, n)
	for i := range n {
		for j, s := range pcm[i*frameLen : (i+1)*frameLen] {
			buf[2*j] = byte(s)
			buf[2*j+1] = byte(s >> 8)
		}
		voice, err := d.vad.Process(sampleRate, buf)
		if err != nil {
			return nil, fmt.Errorf("webrtc vad: %w", err)
		}
		flags[i] = voice
	}
	return rangesFromFrames(flags, frameLen, d.minSpeech, d.minSilence), nil
}
