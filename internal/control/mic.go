package control

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"livesub/internal/audio"
	"livesub/internal/config"
)

// NewMicCmd groups mic subcommands.
func NewMicCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mic",
		Aliases: []string{"microphone", "mics"},
		Short:   "Input device management",
	}
	cmd.AddCommand(newMicListCmd())
	cmd.AddCommand(newMicSetCmd(cfgPath))
	return cmd
}

func newMicListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := audio.ListDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(out).Encode(devs)
			}
			for _, d := range devs {
				defMark := ""
				if d.Default {
					defMark = " (default)"
				}
				_, _ = fmt.Fprintf(out, "[%d] %s%s (in %d ch, %.0f Hz, latency %.2fms)\n", d.Index, d.Name, defMark, d.Channels, d.SampleRate, d.LatencyMS)
			}
			if len(devs) == 0 && runtime.GOOS == "darwin" {
				_, _ = fmt.Fprintln(out, "tip: if no devices appear, install PortAudio: brew install portaudio")
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newMicSetCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [name]",
		Short: "Set input device by name (substring match) or --index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			if idx, _ := cmd.Flags().GetInt("index"); idx >= 0 {
				devs, err := audio.ListDevices()
				if err != nil {
					return err
				}
				if name, err = deviceByIndex(devs, idx); err != nil {
					return err
				}
			}
			if name == "" {
				return fmt.Errorf("give a device name or --index (see mic list)")
			}
			cfg.Audio.DeviceName = name
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "mic set to %q in %s\n", name, cfg.Paths.ConfigPath)
			return nil
		},
	}
	cmd.Flags().Int("index", -1, "device index from mic list")
	return cmd
}

func deviceByIndex(devs []audio.Device, idx int) (string, error) {
	for _, d := range devs {
		if d.Index == idx {
			return d.Name, nil
		}
	}
	return "", fmt.Errorf("no input device with index %d", idx)
}
