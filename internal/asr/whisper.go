//go:build whisper

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"

	"livesub/internal/audio"
)

// WhisperRecognizer runs a local whisper.cpp model.
type WhisperRecognizer struct {
	mu     sync.Mutex
	model  whisper.Model
	logger *logrus.Logger
}

// NewWhisperRecognizer loads the ggml model at modelPath.
func NewWhisperRecognizer(modelPath string, logger *logrus.Logger) (Recognizer, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WhisperRecognizer{model: model, logger: logger}, nil
}

func (r *WhisperRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sampleRate != whisper.SampleRate {
		samples = audio.Resample(samples, sampleRate, whisper.SampleRate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", err
	}
	wctx.SetThreads(uint(runtime.NumCPU()))
	if lang = strings.TrimSpace(lang); lang != "" {
		if err := wctx.SetLanguage(lang); err != nil {
			r.logger.Warnf("set language %q: %v", lang, err)
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// Close releases the model.
func (r *WhisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model.Close()
}
