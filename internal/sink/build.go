package sink

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"livesub/internal/config"
	"livesub/internal/hook"
	"livesub/internal/metrics"
)

// FromConfig registers the listeners enabled in cfg. The returned History is
// always registered first so status queries see every result. console may be
// nil to suppress console output.
func FromConfig(cfg *config.Config, console io.Writer, logger *logrus.Logger, m *metrics.Metrics) (*Fanout, *History, error) {
	f := NewFanout(logger, m)
	hist := NewHistory(cfg.UI.StatusTail)
	f.Register("history", hist)

	if cfg.Output.Console && console != nil {
		f.Register("console", NewConsole(console))
	}
	if cfg.Output.Subtitles {
		file, err := OpenFile(cfg.Paths.SubtitlePath)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		f.Register("subtitles", file)
	}
	if cfg.Broadcast.Enabled {
		b := NewBroadcast(cfg.Broadcast.Path, time.Duration(cfg.Broadcast.WriteTimeoutMS)*time.Millisecond, logger)
		if err := b.Listen(cfg.Broadcast.Addr); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		f.Register("broadcast", b)
	}
	if cfg.Hook.Enabled {
		runner, err := hook.NewRunner(cfg, logger)
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		f.Register("hook", NewHook(runner, cfg.Hook.QueueSize, logger))
	}
	return f, hist, nil
}
