package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"livesub/internal/audio"
	"livesub/internal/config"
	"livesub/internal/control"
	"livesub/internal/metrics"
	"livesub/internal/pipeline"
	"livesub/internal/sink"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	// a run that lasted this long resets the backoff
	stableRun = 30 * time.Second
)

// Server keeps a capture pipeline running and answers control requests.
// Listeners live for the whole server; pipelines are rebuilt whenever the
// audio source fails.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	fanout    *sink.Fanout
	history   *sink.History
	newSource func() (audio.Source, error)
	startedAt time.Time
	backoff   time.Duration

	mu       sync.Mutex
	current  *pipeline.Pipeline
	restarts int
	lastErr  string
	lastSeq  uint64 // carried into each rebuilt pipeline
}

// NewServer builds a server delivering into fanout. newSource is called once
// per pipeline run.
func NewServer(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics, fanout *sink.Fanout, hist *sink.History, newSource func() (audio.Source, error)) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		fanout:    fanout,
		history:   hist,
		newSource: newSource,
		startedAt: time.Now(),
		backoff:   minBackoff,
	}
}

// Serve runs the daemon until SIGINT or SIGTERM.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	fanout, hist, err := sink.FromConfig(cfg, os.Stdout, logger, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := fanout.Close(); err != nil {
			logger.Warnf("close listeners: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srcCfg := pipeline.SourceConfig(cfg, m)
	srv := NewServer(cfg, logger, m, fanout, hist, func() (audio.Source, error) {
		return audio.NewPortAudioSource(srcCfg)
	})

	ln, err := net.Listen("unix", cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	go srv.controlLoop(ctx, ln)
	defer func() { _ = os.Remove(cfg.Paths.SocketPath) }()

	if m != nil {
		go serveMetrics(ctx, cfg.Metrics.Addr, m.Handler(), logger)
	}

	logger.Infof("livesub listening (%s -> %s), pid %d", cfg.Translate.Source, cfg.Translate.Target, os.Getpid())
	err = srv.Run(ctx)
	logger.Info("shutdown complete")
	return err
}

// Run keeps a pipeline running until ctx is cancelled. Source failures are
// retried with exponential backoff; anything else ends the run.
func (s *Server) Run(ctx context.Context) error {
	backoff := s.backoff
	for ctx.Err() == nil {
		started := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
			s.logger.Warn("audio source ended; restarting capture")
		case errors.Is(err, pipeline.ErrSourceUnavailable):
			s.logger.Errorf("pipeline: %v", err)
		default:
			return err
		}
		s.recordRestart(err)
		if time.Since(started) >= stableRun {
			backoff = s.backoff
		}
		s.logger.Infof("restarting capture in %s", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil
}

func (s *Server) runOnce(ctx context.Context) error {
	src, err := s.newSource()
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, err)
	}
	p, err := pipeline.FromConfig(s.cfg, src, s.fanout, s.logger, s.metrics)
	if err != nil {
		_ = src.Close()
		return err
	}
	s.mu.Lock()
	p.ResumeAfter(s.lastSeq)
	s.current = p
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lastSeq = p.Stats().LastSeq
		s.current = nil
	}()
	return p.Run(ctx)
}

func (s *Server) recordRestart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = "audio source ended"
	}
}

// Status snapshots the daemon for the control socket.
func (s *Server) Status() control.Status {
	s.mu.Lock()
	p := s.current
	st := control.Status{
		Running:   true,
		PID:       os.Getpid(),
		UptimeSec: time.Since(s.startedAt).Seconds(),
		Restarts:  s.restarts,
		LastError: s.lastErr,
	}
	s.mu.Unlock()
	if p != nil {
		st.Pipeline = p.Stats()
	} else {
		st.Pipeline.State = "restarting"
	}
	st.Subtitles = s.subtitles(s.cfg.UI.StatusTail)
	return st
}

func (s *Server) subtitles(limit int) []control.Subtitle {
	if s.history == nil {
		return nil
	}
	results := s.history.Snapshot()
	if limit > 0 && len(results) > limit {
		results = results[len(results)-limit:]
	}
	out := make([]control.Subtitle, 0, len(results))
	for _, r := range results {
		out = append(out, control.Subtitle{Seq: r.Seq, Original: r.Original, Translated: r.Translated, Timestamp: r.Timestamp})
	}
	return out
}

func (s *Server) health() control.SimpleResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		msg := "capture restarting"
		if s.lastErr != "" {
			msg += ": " + s.lastErr
		}
		return control.SimpleResponse{OK: false, Message: msg}
	}
	return control.SimpleResponse{OK: true, Message: "ok"}
}

func (s *Server) controlLoop(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Debugf("control connection close: %v", err)
		}
	}()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		s.logger.Debugf("control: bad request: %v", err)
		return
	}
	var resp any
	switch req.Op {
	case control.OpStatus:
		resp = s.Status()
	case control.OpHealth:
		resp = s.health()
	case control.OpSubtitles:
		resp = s.subtitles(req.Limit)
	default:
		resp = control.SimpleResponse{OK: false, Message: fmt.Sprintf("unknown op %q", req.Op)}
	}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debugf("control reply: %v", err)
	}
}
