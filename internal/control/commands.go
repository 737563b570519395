package control

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"livesub/internal/config"
	"livesub/internal/doctor"
	"livesub/internal/hook"
	"livesub/internal/logging"
)

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and recent subtitles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Query(cfg.Paths.SocketPath, Request{Op: OpStatus}, &status); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(out).Encode(status)
			}
			p := status.Pipeline
			_, _ = fmt.Fprintf(out, "running: %v (pid %d)\nuptime: %.1fs\nstate: %s\n", status.Running, status.PID, status.UptimeSec, p.State)
			_, _ = fmt.Fprintf(out, "segments: %d  results: %d  queued: %d\n", p.Segments, p.Results, p.QueueDepth)
			if status.Restarts > 0 {
				_, _ = fmt.Fprintf(out, "restarts: %d (last error: %s)\n", status.Restarts, status.LastError)
			}
			writeSubtitles(out, status.Subtitles)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewHealthCmd pings the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := Query(cfg.Paths.SocketPath, Request{Op: OpHealth}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("daemon unhealthy: %s", resp.Message)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

// NewTailLogCmd prints the last lines of the log or subtitle file.
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			path := cfg.Paths.LogPath
			if subs, _ := cmd.Flags().GetBool("subtitles"); subs {
				path = cfg.Paths.SubtitlePath
			}
			return tailFile(cmd.OutOrStdout(), path, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	cmd.Flags().Bool("subtitles", false, "tail the subtitle log instead of the daemon log")
	return cmd
}

func tailFile(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		_, _ = fmt.Fprintln(w, l)
	}
	return nil
}

func writeSubtitles(w io.Writer, subs []Subtitle) {
	for _, s := range subs {
		_, _ = fmt.Fprintf(w, "%s  #%d %s\n", s.Timestamp.Format("15:04:05"), s.Seq, s.Original)
		if s.Translated != "" {
			_, _ = fmt.Fprintf(w, "          %s\n", s.Translated)
		}
	}
}

// NewTestHookCmd triggers the hook manually.
func NewTestHookCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-hook \"original\" [\"translation\"]",
		Short: "Send sample text through the hook",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			r, err := hook.NewRunner(cfg, logger)
			if err != nil {
				return err
			}
			job := hook.Job{Seq: 0, Original: args[0], Timestamp: time.Now()}
			if len(args) == 2 {
				job.Translated = args[1]
			}
			return r.Run(cmd.Context(), job)
		},
	}
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			failed := false
			for _, r := range doctor.Run(cmd.Context(), cfg) {
				status := "ok"
				switch {
				case r.Skipped:
					status = "skip"
				case !r.Pass:
					status = "fail"
					failed = true
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}
