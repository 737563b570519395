package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"livesub/internal/asr"
	"livesub/internal/metrics"
	"livesub/internal/segment"
	"livesub/internal/sink"
	"livesub/internal/translate"
)

// Placeholder texts delivered in place of a failed stage.
const (
	RecognitionFailedText     = "[recognition failed]"
	TranslationFailedText     = "[translation failed]"
	TranslatorUnavailableText = "[translator unavailable]"
)

// Worker drains the segment queue, recognizes and translates each segment,
// and delivers the result.
type Worker struct {
	Queue      *segment.Queue
	Recognizer asr.Recognizer
	Translator translate.Translator // nil disables translation
	Fanout     *sink.Fanout

	Language   string // recognition hint
	SourceLang string
	TargetLang string
	MinChars   int
	Poll       time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Metrics

	delivered atomic.Uint64
}

// Run processes segments until the queue is closed and drained. It does not
// stop on ctx cancellation; ctx only bounds the recognizer and translator
// calls.
func (w *Worker) Run(ctx context.Context) error {
	poll := w.Poll
	if poll <= 0 {
		poll = time.Second
	}
	for {
		seg, err := w.Queue.Dequeue(poll)
		switch {
		case errors.Is(err, segment.ErrQueueTimeout):
			continue
		case errors.Is(err, segment.ErrQueueClosed):
			w.logger().Debug("segment queue drained")
			return nil
		case err != nil:
			return err
		}
		w.Metrics.SetQueueDepth(w.Queue.Len())
		if res, ok := w.Process(ctx, seg); ok {
			w.Fanout.Deliver(ctx, res)
			w.delivered.Add(1)
		}
	}
}

// Delivered returns the number of results handed to the fan-out.
func (w *Worker) Delivered() uint64 { return w.delivered.Load() }

// Process turns one segment into a result. ok is false when the recognized
// text is too short to be worth delivering.
func (w *Worker) Process(ctx context.Context, seg segment.Segment) (res sink.Result, ok bool) {
	start := time.Now()
	defer func() { w.Metrics.ObserveRecognition(time.Since(start).Seconds()) }()

	res = sink.Result{
		Seq:      seg.Seq,
		Final:    seg.Final,
		Duration: seg.Duration(),
	}
	log := w.logger().WithFields(logrus.Fields{"seq": seg.Seq, "duration": seg.Duration().Round(10 * time.Millisecond)})

	text, err := w.Recognizer.Recognize(ctx, seg.Samples, seg.SampleRate, w.Language)
	if err != nil {
		w.Metrics.RecognitionFailed()
		log.Errorf("recognition failed: %v", err)
		res.Original = RecognitionFailedText
		res.Translated = RecognitionFailedText
		res.Failure = sink.FailureRecognition
		res.Timestamp = time.Now()
		return res, true
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) < w.MinChars {
		w.Metrics.ResultDiscarded()
		log.Debugf("discarding short recognition %q", text)
		return res, false
	}
	res.Original = text
	log.Infof("recognized: %s", text)

	switch {
	case w.Translator == nil:
		res.Translated = TranslatorUnavailableText
		res.Failure = sink.FailureNoTranslator
	default:
		translated, err := w.Translator.Translate(ctx, text, w.SourceLang, w.TargetLang)
		if err != nil {
			w.Metrics.TranslationFailed()
			log.Warnf("translation failed: %v", err)
			res.Translated = TranslationFailedText
			res.Failure = sink.FailureTranslation
		} else {
			res.Translated = translated
			log.Infof("translated: %s", translated)
		}
	}
	res.Timestamp = time.Now()
	return res, true
}

func (w *Worker) logger() *logrus.Logger {
	if w.Logger == nil {
		return logrus.StandardLogger()
	}
	return w.Logger
}
