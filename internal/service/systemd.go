package service

import (
	"os"
	"path/filepath"
	"strings"
)

const systemdTemplate = `[Unit]
Description=livesub live subtitle daemon
After=sound.target network-online.target

[Service]
ExecStart="{{.Binary}}" serve --config "{{.Config}}"
Restart=on-failure
RestartSec=2
{{- range $k, $v := .Env }}
Environment="{{$k}}={{$v}}"
{{- end }}
StandardOutput=append:{{.Log}}
StandardError=append:{{.Log}}

[Install]
WantedBy=default.target
`

// UnitName maps a reverse-DNS label to a systemd unit file name.
func UnitName(label string) string {
	name := label
	if i := strings.LastIndex(label, "."); i >= 0 {
		name = strings.TrimSuffix(label[:i], ".")
		if j := strings.LastIndex(name, "."); j >= 0 {
			name = name[j+1:]
		}
	}
	return name + ".service"
}

// SystemdPath returns the user unit path for a label.
func SystemdPath(label string) string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "systemd", "user", UnitName(label))
}

// WriteSystemdUnit writes a user-level systemd unit.
func WriteSystemdUnit(params Params) (string, error) {
	return writeTemplate(SystemdPath(params.Label), systemdTemplate, params)
}
