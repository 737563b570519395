package control

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"livesub/internal/config"
	"livesub/internal/service"
)

// NewServiceRootCmd groups the per-user service helpers.
func NewServiceRootCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install/uninstall the user service (launchd on macOS, systemd elsewhere)",
	}
	cmd.PersistentFlags().String("label", service.DefaultLabel, "service label")
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write the service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			pairs, _ := cmd.Flags().GetStringArray("env")
			env, err := parseEnvPairs(pairs)
			if err != nil {
				return err
			}
			bin, err := os.Executable()
			if err != nil {
				return err
			}
			label, _ := cmd.Flags().GetString("label")
			path, err := service.Install(service.Params{
				Label:  label,
				Binary: bin,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "wrote %s\n", path)
			if service.Launchd() {
				_, _ = fmt.Fprintf(out, "load with: launchctl load -w %s\n", path)
			} else {
				_, _ = fmt.Fprintf(out, "enable with: systemctl --user daemon-reload && systemctl --user enable --now %s\n", service.UnitName(label))
			}
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "KEY=VALUE environment for the service (repeatable)")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			label, _ := cmd.Flags().GetString("label")
			path, err := service.Uninstall(label)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s (stop the running agent with your service manager)\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the service definition is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			label, _ := cmd.Flags().GetString("label")
			path, ok := service.Status(label)
			state := "not installed"
			if ok {
				state = "installed"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", state, path)
			return nil
		},
	}
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := map[string]string{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --env %q (want KEY=VALUE)", p)
		}
		env[strings.TrimSpace(k)] = v
	}
	return env, nil
}
