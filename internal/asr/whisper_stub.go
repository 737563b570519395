//go:build !whisper

package asr

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// NewWhisperRecognizer is unavailable without the whisper build tag.
func NewWhisperRecognizer(string, *logrus.Logger) (Recognizer, error) {
	return nil, errors.New("local whisper backend not built; rebuild with -tags whisper or use asr.backend = \"server\"")
}
