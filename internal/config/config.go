package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultSilenceMS     = 1500
	defaultMergeGapMS    = 500
	defaultMinSegmentMS  = 2000
	defaultMaxSegmentMS  = 10000
	defaultWindowMS      = 3000
	defaultMinChars      = 4
	defaultStatusTail    = 10
	defaultStateDirLinux = ".local/state/livesub"
	defaultConfigDir     = ".config/livesub"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName     string `toml:"device_name"`
		SampleRate     int    `toml:"sample_rate"`
		Channels       int    `toml:"channels"`
		FrameMS        int    `toml:"frame_ms"`
		BufferFrames   int    `toml:"buffer_frames"` // callback -> capture loop channel size
		ReadTimeoutMS  int    `toml:"read_timeout_ms"`
		StallTimeoutMS int    `toml:"stall_timeout_ms"` // no frame for this long = device lost; 0 disables
	} `toml:"audio"`

	VAD struct {
		Engine         string  `toml:"engine"` // energy, webrtc
		FrameMS        int     `toml:"frame_ms"`
		Aggressiveness int     `toml:"aggressiveness"`
		EnergyThresh   float64 `toml:"energy_threshold"`
		MinSpeechMS    int     `toml:"min_speech_ms"`
		MinSilenceMS   int     `toml:"min_silence_ms"`
	} `toml:"vad"`

	Segment struct {
		MergeGapMS      int  `toml:"merge_gap_ms"`
		SilenceMS       int  `toml:"silence_ms"`
		MinDurationMS   int  `toml:"min_duration_ms"`
		MaxDurationMS   int  `toml:"max_duration_ms"`
		WindowMS        int  `toml:"window_ms"`
		DropShortOnStop bool `toml:"drop_short_on_stop"`
	} `toml:"segment"`

	Queue struct {
		Capacity         int `toml:"capacity"`
		DequeueTimeoutMS int `toml:"dequeue_timeout_ms"`
	} `toml:"queue"`

	ASR struct {
		Backend    string  `toml:"backend"` // server, whisper
		ServerURL  string  `toml:"server_url"`
		ModelPath  string  `toml:"model_path"`
		Language   string  `toml:"language"`
		MinChars   int     `toml:"min_chars"`
		TimeoutSec float64 `toml:"timeout_sec"`
	} `toml:"asr"`

	Translate struct {
		Backends   []string `toml:"backends"` // google, none
		Source     string   `toml:"source"`
		Target     string   `toml:"target"`
		Endpoint   string   `toml:"endpoint"`
		Proxy      string   `toml:"proxy"`
		TimeoutSec float64  `toml:"timeout_sec"`
	} `toml:"translate"`

	Output struct {
		Console   bool `toml:"console"`
		Subtitles bool `toml:"subtitles"`
	} `toml:"output"`

	Hook struct {
		Enabled     bool              `toml:"enabled"`
		Command     string            `toml:"command"`
		Args        string            `toml:"args"`   // shell-style, split with shlex
		Prefix      string            `toml:"prefix"` // ${hostname} is expanded
		CooldownSec float64           `toml:"cooldown_sec"`
		TimeoutSec  float64           `toml:"timeout_sec"`
		QueueSize   int               `toml:"queue_size"`
		RedactPII   bool              `toml:"redact_pii"`
		Env         map[string]string `toml:"env"`
	} `toml:"hook"`

	Broadcast struct {
		Enabled        bool   `toml:"enabled"`
		Addr           string `toml:"addr"`
		Path           string `toml:"path"`
		WriteTimeoutMS int    `toml:"write_timeout_ms"`
	} `toml:"broadcast"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir     string `toml:"state_dir"`
		LogPath      string `toml:"log_path"`
		SubtitlePath string `toml:"subtitle_path"`
		SocketPath   string `toml:"socket_path"`
		PidPath      string `toml:"pid_path"`
		ConfigPath   string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/livesub for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "livesub")
	}

	cfg := &Config{}

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20
	cfg.Audio.BufferFrames = 100
	cfg.Audio.ReadTimeoutMS = 500
	cfg.Audio.StallTimeoutMS = 5000

	cfg.VAD.Engine = "energy"
	cfg.VAD.FrameMS = 20
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.EnergyThresh = 0.02
	cfg.VAD.MinSpeechMS = 200
	cfg.VAD.MinSilenceMS = 100

	cfg.Segment.MergeGapMS = defaultMergeGapMS
	cfg.Segment.SilenceMS = defaultSilenceMS
	cfg.Segment.MinDurationMS = defaultMinSegmentMS
	cfg.Segment.MaxDurationMS = defaultMaxSegmentMS
	cfg.Segment.WindowMS = defaultWindowMS

	cfg.Queue.Capacity = 4
	cfg.Queue.DequeueTimeoutMS = 1000

	cfg.ASR.Backend = "server"
	cfg.ASR.ServerURL = "http://127.0.0.1:8080"
	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", "ggml-base.bin")
	cfg.ASR.Language = "en"
	cfg.ASR.MinChars = defaultMinChars
	cfg.ASR.TimeoutSec = 30

	cfg.Translate.Backends = []string{"google"}
	cfg.Translate.Source = "en"
	cfg.Translate.Target = "zh-CN"
	cfg.Translate.TimeoutSec = 10

	cfg.Output.Console = true
	cfg.Output.Subtitles = true

	cfg.Hook.Enabled = false
	cfg.Hook.TimeoutSec = 5
	cfg.Hook.QueueSize = 8
	cfg.Hook.Env = map[string]string{}

	cfg.Broadcast.Enabled = false
	cfg.Broadcast.Addr = "127.0.0.1:8001"
	cfg.Broadcast.Path = "/ws"
	cfg.Broadcast.WriteTimeoutMS = 1000

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "livesub.log")
	cfg.Paths.SubtitlePath = filepath.Join(stateDir, "subtitles.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "livesub.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "livesub.pid")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate rejects settings the segmentation pipeline cannot honour.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive (got %d)", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("only mono input supported; set audio.channels = 1")
	}
	if c.Audio.FrameMS <= 0 {
		return fmt.Errorf("audio.frame_ms must be positive (got %d)", c.Audio.FrameMS)
	}
	if c.Audio.StallTimeoutMS < 0 {
		return fmt.Errorf("audio.stall_timeout_ms must not be negative (got %d)", c.Audio.StallTimeoutMS)
	}
	if c.ASR.MinChars < 0 {
		return fmt.Errorf("asr.min_chars must not be negative (got %d)", c.ASR.MinChars)
	}
	s := c.Segment
	if s.MinDurationMS < 0 || s.MaxDurationMS <= 0 {
		return fmt.Errorf("segment durations must be positive")
	}
	if s.MinDurationMS > s.MaxDurationMS {
		return fmt.Errorf("segment.min_duration_ms (%d) exceeds segment.max_duration_ms (%d)", s.MinDurationMS, s.MaxDurationMS)
	}
	if s.MergeGapMS < 0 || s.SilenceMS <= 0 {
		return fmt.Errorf("segment.merge_gap_ms and segment.silence_ms must be non-negative")
	}
	if s.WindowMS <= 0 {
		return fmt.Errorf("segment.window_ms must be positive (got %d)", s.WindowMS)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive (got %d)", c.Queue.Capacity)
	}
	switch strings.ToLower(c.VAD.Engine) {
	case "energy", "webrtc":
	default:
		return fmt.Errorf("vad.engine must be energy or webrtc (got %q)", c.VAD.Engine)
	}
	switch strings.ToLower(c.ASR.Backend) {
	case "server", "whisper":
	default:
		return fmt.Errorf("asr.backend must be server or whisper (got %q)", c.ASR.Backend)
	}
	if c.Hook.Enabled && strings.TrimSpace(c.Hook.Command) == "" {
		return fmt.Errorf("hook.enabled requires hook.command")
	}
	return nil
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.SubtitlePath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIVESUB_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("LIVESUB_BROADCAST_ADDR"); v != "" {
		cfg.Broadcast.Addr = v
		cfg.Broadcast.Enabled = true
	}
	if v := os.Getenv("LIVESUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LIVESUB_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LIVESUB_SOURCE_LANG"); v != "" {
		cfg.Translate.Source = v
		cfg.ASR.Language = v
	}
	if v := os.Getenv("LIVESUB_TARGET_LANG"); v != "" {
		cfg.Translate.Target = v
	}
	if v := os.Getenv("LIVESUB_ASR_SERVER"); v != "" {
		cfg.ASR.ServerURL = v
		cfg.ASR.Backend = "server"
	}
	if v := os.Getenv("LIVESUB_SUBTITLES_ENABLED"); v != "" {
		cfg.Output.Subtitles = v != "0" && strings.ToLower(v) != "false"
	}
}
