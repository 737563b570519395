package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"livesub/internal/audio"
	"livesub/internal/config"
	"livesub/internal/pipeline"
)

// fakeDaemon answers one request per connection with reply(req).
func fakeDaemon(t *testing.T, reply func(Request) any) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "lsctl")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			var req Request
			if err := json.NewDecoder(conn).Decode(&req); err == nil {
				_ = json.NewEncoder(conn).Encode(reply(req))
			}
			_ = conn.Close()
		}
	}()
	return sock
}

func testConfig(t *testing.T, sock string) string {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	dir := t.TempDir()
	cfg.Paths.StateDir = dir
	cfg.Paths.SocketPath = sock
	cfg.Paths.LogPath = filepath.Join(dir, "livesub.log")
	cfg.Paths.SubtitlePath = filepath.Join(dir, "subtitles.log")
	path := filepath.Join(dir, "config.toml")
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func TestQueryStatus(t *testing.T) {
	sock := fakeDaemon(t, func(req Request) any {
		if req.Op != OpStatus {
			t.Errorf("unexpected op %q", req.Op)
		}
		return Status{Running: true, PID: 42, Pipeline: pipeline.Stats{State: "speaking", Segments: 3}}
	})
	var st Status
	if err := Query(sock, Request{Op: OpStatus}, &st); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !st.Running || st.PID != 42 || st.Pipeline.Segments != 3 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestQueryNoDaemon(t *testing.T) {
	err := Query(filepath.Join(t.TempDir(), "missing.sock"), Request{Op: OpHealth}, &SimpleResponse{})
	if err == nil || !strings.Contains(err.Error(), "cannot connect") {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestStatusCmdPrintsSubtitles(t *testing.T) {
	ts := time.Date(2024, 1, 2, 10, 11, 12, 0, time.Local)
	sock := fakeDaemon(t, func(Request) any {
		return Status{
			Running:   true,
			PID:       7,
			Pipeline:  pipeline.Stats{State: "idle", Results: 1},
			Subtitles: []Subtitle{{Seq: 1, Original: "hello there", Translated: "你好", Timestamp: ts}},
		}
	})
	cfgPath := testConfig(t, sock)
	cmd := NewStatusCmd(&cfgPath)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("status: %v", err)
	}
	s := out.String()
	for _, want := range []string{"pid 7", "state: idle", "10:11:12  #1 hello there", "你好"} {
		if !strings.Contains(s, want) {
			t.Fatalf("status output missing %q:\n%s", want, s)
		}
	}
}

func TestHealthCmdUnhealthy(t *testing.T) {
	sock := fakeDaemon(t, func(Request) any {
		return SimpleResponse{OK: false, Message: "source unavailable"}
	})
	cfgPath := testConfig(t, sock)
	cmd := NewHealthCmd(&cfgPath)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "source unavailable") {
		t.Fatalf("expected unhealthy error, got %v", err)
	}
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	if err := os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if err := tailFile(&out, path, 2); err != nil {
		t.Fatalf("tail: %v", err)
	}
	if out.String() != "c\nd\n" {
		t.Fatalf("got %q", out.String())
	}
	if err := tailFile(&out, path+".missing", 2); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseEnvPairs(t *testing.T) {
	env, err := parseEnvPairs([]string{"A=1", "B=x=y"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env["A"] != "1" || env["B"] != "x=y" {
		t.Fatalf("unexpected env %v", env)
	}
	if _, err := parseEnvPairs([]string{"novalue"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDownloadModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.bin" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ggml-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "models", "ggml-base.bin")
	var log bytes.Buffer
	if err := downloadModel(context.Background(), srv.URL+"/ggml-base.bin", dest, &log); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "ggml-bytes" {
		t.Fatalf("bad model file %q (%v)", data, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind")
	}

	other := filepath.Join(filepath.Dir(dest), "missing.bin")
	if err := downloadModel(context.Background(), srv.URL+"/missing.bin", other, &log); err == nil {
		t.Fatalf("expected 404 error")
	}
	if _, err := os.Stat(other); !os.IsNotExist(err) {
		t.Fatalf("failed download must not create %s", other)
	}
}

func TestResolveModel(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Paths.StateDir = "/state"
	if got := resolveModel(cfg, "ggml-base.bin"); got != filepath.Join("/state", "models", "ggml-base.bin") {
		t.Fatalf("bare name resolved to %s", got)
	}
	if got := resolveModel(cfg, "/opt/m.bin"); got != "/opt/m.bin" {
		t.Fatalf("path rewritten to %s", got)
	}
}

func TestDeviceByIndex(t *testing.T) {
	devs := []audio.Device{{Index: 0, Name: "Built-in Mic"}, {Index: 3, Name: "USB Audio"}}
	if name, err := deviceByIndex(devs, 3); err != nil || name != "USB Audio" {
		t.Fatalf("got %q, %v", name, err)
	}
	if _, err := deviceByIndex(devs, 1); err == nil {
		t.Fatalf("expected error for missing index")
	}
}
