//go:build !whisper

package vad

import "errors"

// NewWebRTCDetector is unavailable without cgo WebRTC VAD.
func NewWebRTCDetector(Config) (Detector, error) {
	return nil, errors.New("vad.engine = webrtc requires a build with '-tags whisper'")
}
