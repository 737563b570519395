//go:build !whisper

package audio

import "errors"

var errNoPortAudio = errors.New("live capture requires a build with '-tags whisper' (PortAudio)")

// NewPortAudioSource is unavailable without PortAudio.
func NewPortAudioSource(SourceConfig) (Source, error) {
	return nil, errNoPortAudio
}

// ListDevices is unavailable without PortAudio.
func ListDevices() ([]Device, error) {
	return nil, errNoPortAudio
}
