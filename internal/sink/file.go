package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File appends results to a subtitle log and syncs after every record so a
// crash loses at most the record being written.
type File struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFile opens path for appending, creating parent directories.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open subtitle log: %w", err)
	}
	return &File{f: f}, nil
}

func (s *File) OnResult(_ context.Context, r Result) error {
	ts := r.Timestamp.Format("15:04:05")
	rec := fmt.Sprintf("[%s] %s\n", ts, r.Original)
	if r.Translated != "" {
		rec += fmt.Sprintf("[%s] translation: %s\n", ts, r.Translated)
	}
	rec += "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	if _, err := s.f.WriteString(rec); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
