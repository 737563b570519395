// Package asr turns utterance audio into text.
package asr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"livesub/internal/config"
)

// Recognizer transcribes mono samples. lang is a language hint and may be
// empty for auto-detection. Implementations that hold native resources also
// implement io.Closer.
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32, sampleRate int, lang string) (string, error)
}

// New returns the recognizer selected by cfg.ASR.Backend.
func New(cfg *config.Config, logger *logrus.Logger) (Recognizer, error) {
	switch strings.ToLower(cfg.ASR.Backend) {
	case "", "server":
		return NewServerRecognizer(cfg.ASR.ServerURL, time.Duration(cfg.ASR.TimeoutSec*float64(time.Second)), logger), nil
	case "whisper":
		return NewWhisperRecognizer(cfg.ASR.ModelPath, logger)
	default:
		return nil, fmt.Errorf("unknown asr backend %q", cfg.ASR.Backend)
	}
}
