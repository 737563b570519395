// Package control implements the CLI commands that talk to a running daemon
// over its unix socket, plus the one-shot commands that do not need one.
package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"livesub/internal/pipeline"
)

// Socket operations.
const (
	OpStatus    = "status"
	OpHealth    = "health"
	OpSubtitles = "subtitles"
)

type Request struct {
	Op    string `json:"op"`
	Limit int    `json:"limit,omitempty"`
}

type Status struct {
	Running   bool           `json:"running"`
	PID       int            `json:"pid"`
	UptimeSec float64        `json:"uptime_sec"`
	Restarts  int            `json:"restarts"`
	LastError string         `json:"last_error,omitempty"`
	Pipeline  pipeline.Stats `json:"pipeline"`
	Subtitles []Subtitle     `json:"subtitles"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Subtitle struct {
	Seq        uint64    `json:"seq"`
	Original   string    `json:"original"`
	Translated string    `json:"translated"`
	Timestamp  time.Time `json:"timestamp"`
}

// Query sends req to the daemon at socketPath and decodes the reply into resp.
func Query(socketPath string, req Request, resp any) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	if err := json.NewDecoder(conn).Decode(resp); err != nil {
		return fmt.Errorf("read daemon reply: %w", err)
	}
	return nil
}
