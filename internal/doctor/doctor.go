// Package doctor checks the local environment for everything the daemon
// needs before it is started.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"livesub/internal/config"
)

// Result represents a diagnostic check.
type Result struct {
	Name    string
	Pass    bool
	Skipped bool
	Detail  string
}

// Run executes doctor checks.
func Run(ctx context.Context, cfg *config.Config) []Result {
	results := []Result{checkFile("config path", cfg.Paths.ConfigPath)}
	if strings.EqualFold(cfg.ASR.Backend, "whisper") {
		results = append(results, checkFile("model file", cfg.ASR.ModelPath))
	} else {
		results = append(results, skip("model file", "asr.backend is "+cfg.ASR.Backend))
	}
	if strings.EqualFold(cfg.ASR.Backend, "server") {
		results = append(results, checkServer(ctx, cfg.ASR.ServerURL))
	} else {
		results = append(results, skip("asr server", "asr.backend is "+cfg.ASR.Backend))
	}
	if cfg.Hook.Enabled {
		results = append(results, checkHookExecutable(cfg.Hook.Command))
	} else {
		results = append(results, skip("hook.command", "hook disabled"))
	}
	results = append(results, checkPortAudioPkgConfig(), checkPortAudio())
	return results
}

func skip(label, why string) Result {
	return Result{Name: label, Pass: true, Skipped: true, Detail: why}
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

// checkServer only needs the recognition server to answer; any HTTP status
// counts as reachable.
func checkServer(ctx context.Context, url string) Result {
	label := "asr server"
	if url == "" {
		return Result{Name: label, Pass: false, Detail: "asr.server_url not set"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: fmt.Sprintf("%v (start whisper.cpp server or set asr.server_url)", err)}
	}
	_ = resp.Body.Close()
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%s (%s)", url, resp.Status)}
}

func checkHookExecutable(cmd string) Result {
	label := "hook.command"
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found (brew install pkg-config / apt install pkg-config)"}
	}
	if err := exec.Command(pkg, "--exists", "portaudio-2.0").Run(); err != nil {
		return Result{Name: "portaudio-dev", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio / apt install portaudio19-dev)"}
	}
	if out, err := exec.Command(pkg, "--modversion", "portaudio-2.0").Output(); err == nil {
		return Result{Name: "portaudio-dev", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio-dev", Pass: true, Detail: "found via pkg-config"}
}
