package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"livesub/internal/config"
)

func find(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no %q check in %+v", name, results)
	return Result{}
}

func TestRunServerBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg, _ := config.Default()
	dir := t.TempDir()
	cfg.Paths.ConfigPath = filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfg.Paths.ConfigPath, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.ASR.Backend = "server"
	cfg.ASR.ServerURL = srv.URL

	results := Run(context.Background(), cfg)
	if r := find(t, results, "config path"); !r.Pass {
		t.Fatalf("config check failed: %+v", r)
	}
	if r := find(t, results, "model file"); !r.Skipped {
		t.Fatalf("model check should be skipped for server backend: %+v", r)
	}
	if r := find(t, results, "asr server"); !r.Pass || r.Skipped {
		t.Fatalf("server check: %+v", r)
	}
	if r := find(t, results, "hook.command"); !r.Skipped {
		t.Fatalf("hook check should be skipped when disabled: %+v", r)
	}
}

func TestRunWhisperBackendMissingModel(t *testing.T) {
	cfg, _ := config.Default()
	cfg.ASR.Backend = "whisper"
	cfg.ASR.ModelPath = filepath.Join(t.TempDir(), "nope.bin")
	results := Run(context.Background(), cfg)
	if r := find(t, results, "model file"); r.Pass {
		t.Fatalf("missing model should fail: %+v", r)
	}
	if r := find(t, results, "asr server"); !r.Skipped {
		t.Fatalf("server check should be skipped: %+v", r)
	}
}

func TestCheckServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	if r := checkServer(context.Background(), url); r.Pass {
		t.Fatalf("closed server reported reachable: %+v", r)
	}
}

func TestCheckHookExecutable(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := checkHookExecutable(script); r.Pass {
		t.Fatalf("non-executable script passed")
	}
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if r := checkHookExecutable(script); !r.Pass {
		t.Fatalf("executable script failed: %+v", r)
	}
	if r := checkHookExecutable(dir); r.Pass {
		t.Fatalf("directory passed")
	}
	if r := checkHookExecutable("sh"); !r.Pass {
		t.Fatalf("sh not found on PATH: %+v", r)
	}
}
