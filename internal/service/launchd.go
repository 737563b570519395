// Package service writes per-user service definitions (launchd on macOS,
// systemd elsewhere) that keep the livesub daemon running.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// DefaultLabel identifies the agent in launchd and names the systemd unit.
const DefaultLabel = "com.livesub.agent"

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

// Params describes the daemon invocation a service definition launches.
type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// Launchd reports whether this platform uses launchd agents.
func Launchd() bool {
	return runtime.GOOS == "darwin"
}

// Path returns where the service definition for label lives on this platform.
func Path(label string) string {
	if Launchd() {
		return LaunchdPath(label)
	}
	return SystemdPath(label)
}

// LaunchdPath returns the plist path for a label.
func LaunchdPath(label string) string {
	return filepath.Join(os.Getenv("HOME"), "Library", "LaunchAgents", fmt.Sprintf("%s.plist", label))
}

// Install writes the platform's service definition and returns its path.
func Install(params Params) (string, error) {
	if params.Label == "" {
		params.Label = DefaultLabel
	}
	if Launchd() {
		return WritePlist(params)
	}
	return WriteSystemdUnit(params)
}

// Uninstall removes the service definition. A missing file is not an error.
func Uninstall(label string) (string, error) {
	path := Path(label)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return path, err
	}
	return path, nil
}

// Status returns the definition path and whether it exists.
func Status(label string) (string, bool) {
	path := Path(label)
	_, err := os.Stat(path)
	return path, err == nil
}

// WritePlist writes a user-level launchd plist.
func WritePlist(params Params) (string, error) {
	return writeTemplate(LaunchdPath(params.Label), launchdTemplate, params)
}

func writeTemplate(path, text string, params Params) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	tpl := template.Must(template.New(filepath.Base(path)).Parse(text))
	if err := tpl.Execute(f, params); err != nil {
		return "", err
	}
	return path, f.Sync()
}
