package logging

import (
	"os"
	"path/filepath"
	"testing"

	"livesub/internal/config"

	"github.com/sirupsen/logrus"
)

func TestConfigureWritesToLogPath(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "livesub.log")
	cfg.Paths.SubtitlePath = filepath.Join(dir, "subtitles.log")
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	logger, err := Configure(cfg)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %v, want warn", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", logger.Formatter)
	}
	logger.Warn("segment queue full")
	data, err := os.ReadFile(cfg.Paths.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log output in %s", cfg.Paths.LogPath)
	}
}
