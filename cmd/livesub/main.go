package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"livesub/internal/control"
	"livesub/internal/daemon"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "livesub",
		Short: "livesub: live speech-to-subtitle daemon",
		Long: `livesub listens on your mic, cuts speech into utterances, recognizes them with whisper.cpp
(server or in-process), translates each line, and delivers subtitles to the console, a subtitle
log, a websocket feed and an optional hook.

Key commands:
  start|stop|restart          Daemon lifecycle
  status [--json]             Uptime, pipeline state, last subtitles
  translate-file <wav>        Run a recording through the pipeline
  mic list|set                Select microphone (alias: microphone, mics)
  doctor|setup                Check deps / download default model
  models list|download|set    Manage whisper.cpp models
  service install|uninstall|status   launchd/systemd helper
  health|tail-log|test-hook   Liveness, log tail, manual hook

Notable flags/env:
  --metrics-addr <addr>       Enable /metrics (Prometheus)
  --broadcast-addr <addr>     Enable the websocket subtitle feed
  --to <lang>                 Target language for this run
  Env overrides: LIVESUB_METRICS_ADDR, LIVESUB_BROADCAST_ADDR,
                 LIVESUB_LOG_LEVEL/FORMAT, LIVESUB_SOURCE_LANG,
                 LIVESUB_TARGET_LANG, LIVESUB_ASR_SERVER,
                 LIVESUB_SUBTITLES_ENABLED`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("livesub v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/livesub/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTestHookCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewServiceRootCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTranslateFileCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))

	// Hidden internal serve command used by start and the service definitions.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%slivesub%s: live speech-to-subtitle daemon %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sListens on the mic, recognizes each utterance, translates it and delivers subtitles.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  livesub [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  status [--json]             uptime, pipeline state + last subtitles")
		writeln("  translate-file <wav>        subtitle a recording")
		writeln("  mic list|set                select input device (alias: microphone, mics)")
		writeln("  doctor                      check deps/model/asr server/hook/portaudio")
		writeln("  setup                       download default whisper model")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  service install|uninstall|status manage launchd/systemd service")
		writeln("  health                      control-socket liveness ping")
		writeln("  tail-log [--subtitles]      show last log or subtitle lines")
		writeln("  test-hook \"text\" [\"translation\"] invoke hook manually")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  --broadcast-addr <addr> enable websocket subtitle feed")
		writeln("  --to <lang>             target language for this run")
		writeln("  -c, --config <path>     config file (default ~/.config/livesub/config.toml)")
		writeln("  Env: LIVESUB_METRICS_ADDR=host:port, LIVESUB_BROADCAST_ADDR=host:port,")
		writeln("       LIVESUB_LOG_LEVEL=debug, LIVESUB_LOG_FORMAT=json,")
		writeln("       LIVESUB_SOURCE_LANG=en, LIVESUB_TARGET_LANG=zh-CN,")
		writeln("       LIVESUB_ASR_SERVER=http://127.0.0.1:8080, LIVESUB_SUBTITLES_ENABLED=0")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  livesub start --metrics-addr 127.0.0.1:9318 --broadcast-addr 127.0.0.1:8001")
		writeln("  livesub start --to ja")
		writeln("  livesub translate-file talk.wav --subtitles")
		writeln("  livesub mic list")
		writeln("  livesub mic set --index 1")
		writeln("  livesub models download ggml-small.bin --set")
		writeln("  livesub service install --env LIVESUB_METRICS_ADDR=127.0.0.1:9318")
		writeln("  livesub tail-log --subtitles -n 20")
		writeln("  livesub test-hook \"good morning\" \"おはよう\"")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
