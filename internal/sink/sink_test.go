package sink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"livesub/internal/config"
	"livesub/internal/logging"
)

type closer struct {
	closed *[]string
	name   string
}

func (c closer) OnResult(context.Context, Result) error { return nil }

func (c closer) Close() error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

func TestFanoutDeliversInOrderDespiteFailures(t *testing.T) {
	f := NewFanout(logging.NewTestLogger(), nil)
	var calls []string
	f.Register("a", ListenerFunc(func(context.Context, Result) error {
		calls = append(calls, "a")
		return errors.New("disk full")
	}))
	f.Register("b", ListenerFunc(func(context.Context, Result) error {
		calls = append(calls, "b")
		panic("boom")
	}))
	f.Register("c", ListenerFunc(func(_ context.Context, r Result) error {
		calls = append(calls, "c")
		if r.Seq != 4 {
			t.Errorf("seq = %d", r.Seq)
		}
		return nil
	}))

	f.Deliver(context.Background(), Result{Seq: 4, Original: "hi"})
	if strings.Join(calls, ",") != "a,b,c" {
		t.Fatalf("calls = %v", calls)
	}
	if f.Len() != 3 {
		t.Fatalf("len = %d", f.Len())
	}
}

func TestFanoutCloseClosesClosers(t *testing.T) {
	var closed []string
	f := NewFanout(logging.NewTestLogger(), nil)
	f.Register("one", closer{closed: &closed, name: "one"})
	f.Register("plain", ListenerFunc(func(context.Context, Result) error { return nil }))
	f.Register("two", closer{closed: &closed, name: "two"})
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if strings.Join(closed, ",") != "two,one" {
		t.Fatalf("closed = %v", closed)
	}
}

func TestFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "subtitles.log")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.Local)
	_ = f.OnResult(context.Background(), Result{Seq: 1, Original: "hello", Translated: "你好", Timestamp: ts})
	_ = f.OnResult(context.Background(), Result{Seq: 2, Original: "bye", Timestamp: ts})
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "[09:05:07] hello\n[09:05:07] translation: 你好\n\n[09:05:07] bye\n\n"
	if string(data) != want {
		t.Fatalf("got %q want %q", data, want)
	}
	if err := f.OnResult(context.Background(), Result{}); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestFileFormatFailedRecognition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subtitles.log")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts := time.Date(2024, 3, 1, 18, 2, 19, 0, time.Local)
	r := Result{Seq: 3, Original: "[recognition failed]", Translated: "[recognition failed]", Failure: FailureRecognition, Timestamp: ts}
	if err := f.OnResult(context.Background(), r); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()
	data, _ := os.ReadFile(path)
	want := "[18:02:19] [recognition failed]\n[18:02:19] translation: [recognition failed]\n\n"
	if string(data) != want {
		t.Fatalf("got %q want %q", data, want)
	}
}

func TestFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subtitles.log")
	for i := range 2 {
		f, err := OpenFile(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		_ = f.OnResult(context.Background(), Result{Seq: uint64(i + 1), Original: "x"})
		_ = f.Close()
	}
	data, _ := os.ReadFile(path)
	if strings.Count(string(data), "] x\n") != 2 {
		t.Fatalf("expected two records, got %q", data)
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	_ = c.OnResult(context.Background(), Result{Seq: 3, Original: "hello", Translated: "hallo", Duration: 2500 * time.Millisecond})
	out := buf.String()
	for _, want := range []string{"#3", "(2.5s)", "hello", "hallo"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestHistoryKeepsTail(t *testing.T) {
	h := NewHistory(2)
	for i := 1; i <= 3; i++ {
		_ = h.OnResult(context.Background(), Result{Seq: uint64(i)})
	}
	snap := h.Snapshot()
	if len(snap) != 2 || snap[0].Seq != 2 || snap[1].Seq != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestFromConfigRegistersEnabledListeners(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.SubtitlePath = filepath.Join(t.TempDir(), "subtitles.log")
	cfg.Broadcast.Enabled = true
	cfg.Broadcast.Addr = "127.0.0.1:0"
	cfg.Hook.Enabled = true
	cfg.Hook.Command = "/bin/true"

	var console bytes.Buffer
	f, hist, err := FromConfig(cfg, &console, logging.NewTestLogger(), nil)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if f.Len() != 5 {
		t.Fatalf("listeners = %d, want 5", f.Len())
	}
	f.Deliver(context.Background(), Result{Seq: 1, Original: "hello", Translated: "hallo", Timestamp: time.Now()})
	if len(hist.Snapshot()) != 1 || !strings.Contains(console.String(), "hallo") {
		t.Fatalf("history=%d console=%q", len(hist.Snapshot()), console.String())
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, _ := os.ReadFile(cfg.Paths.SubtitlePath)
	if !strings.Contains(string(data), "translation: hallo") {
		t.Fatalf("subtitle log = %q", data)
	}
}

func TestFromConfigMinimal(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Output.Console = false
	cfg.Output.Subtitles = false
	f, _, err := FromConfig(cfg, nil, logging.NewTestLogger(), nil)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if f.Len() != 1 {
		t.Fatalf("listeners = %d, want history only", f.Len())
	}
}
