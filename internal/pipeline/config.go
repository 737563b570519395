package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"livesub/internal/asr"
	"livesub/internal/audio"
	"livesub/internal/config"
	"livesub/internal/metrics"
	"livesub/internal/segment"
	"livesub/internal/sink"
	"livesub/internal/translate"
	"livesub/internal/vad"
)

// SourceConfig derives the capture settings from cfg.
func SourceConfig(cfg *config.Config, m *metrics.Metrics) audio.SourceConfig {
	return audio.SourceConfig{
		DeviceName:   cfg.Audio.DeviceName,
		SampleRate:   cfg.Audio.SampleRate,
		FrameSamples: audio.FrameSamples(cfg.Audio.SampleRate, cfg.Audio.FrameMS),
		Buffer:       cfg.Audio.BufferFrames,
		OnDrop:       m.FrameDropped,
	}
}

// FromConfig builds the detector, recognizer and translator named in cfg
// and returns a pipeline reading from src and delivering to fanout.
func FromConfig(cfg *config.Config, src audio.Source, fanout *sink.Fanout, logger *logrus.Logger, m *metrics.Metrics) (*Pipeline, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	det, err := vad.New(vad.Config{
		Engine:         cfg.VAD.Engine,
		FrameMS:        cfg.VAD.FrameMS,
		Aggressiveness: cfg.VAD.Aggressiveness,
		EnergyThresh:   cfg.VAD.EnergyThresh,
		MinSpeechMS:    cfg.VAD.MinSpeechMS,
		MinSilenceMS:   cfg.VAD.MinSilenceMS,
	})
	if err != nil {
		return nil, err
	}
	rec, err := asr.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	tr, err := translate.New(cfg)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		logger.Warn("translation disabled; results carry a placeholder translation")
	}

	s := cfg.Segment
	segCfg := segment.ConfigFromMillis(cfg.Audio.SampleRate, s.MergeGapMS, s.SilenceMS, s.MinDurationMS, s.MaxDurationMS, s.WindowMS)
	segCfg.DropShortOnStop = s.DropShortOnStop

	return New(Options{
		Source:         src,
		Detector:       det,
		Recognizer:     rec,
		Translator:     tr,
		Fanout:         fanout,
		Segment:        segCfg,
		QueueCapacity:  cfg.Queue.Capacity,
		ReadTimeout:    time.Duration(cfg.Audio.ReadTimeoutMS) * time.Millisecond,
		DequeueTimeout: time.Duration(cfg.Queue.DequeueTimeoutMS) * time.Millisecond,
		StallTimeout:   time.Duration(cfg.Audio.StallTimeoutMS) * time.Millisecond,
		Language:       cfg.ASR.Language,
		SourceLang:     cfg.Translate.Source,
		TargetLang:     cfg.Translate.Target,
		MinChars:       cfg.ASR.MinChars,
		Logger:         logger,
		Metrics:        m,
	}), nil
}
