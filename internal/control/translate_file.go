package control

import (
	"fmt"

	"github.com/spf13/cobra"

	"livesub/internal/audio"
	"livesub/internal/config"
	"livesub/internal/logging"
	"livesub/internal/pipeline"
	"livesub/internal/sink"
)

// NewTranslateFileCmd runs a WAV file through the subtitle pipeline and
// prints the results.
func NewTranslateFileCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate-file <wavfile>",
		Short: "Segment, recognize and translate a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			cfg.Output.Console = true
			cfg.Output.Subtitles, _ = cmd.Flags().GetBool("subtitles")
			cfg.Hook.Enabled, _ = cmd.Flags().GetBool("hook")
			cfg.Broadcast.Enabled = false
			if to, _ := cmd.Flags().GetString("to"); to != "" {
				cfg.Translate.Target = to
			}

			fanout, _, err := sink.FromConfig(cfg, cmd.OutOrStdout(), logger, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := fanout.Close(); err != nil {
					logger.Warnf("close listeners: %v", err)
				}
			}()
			src := audio.NewWAVSource(args[0], pipeline.SourceConfig(cfg, nil))
			p, err := pipeline.FromConfig(cfg, src, fanout, logger, nil)
			if err != nil {
				return err
			}
			if err := p.Run(cmd.Context()); err != nil {
				return err
			}
			st := p.Stats()
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d segments, %d subtitles\n", st.Segments, st.Results)
			return nil
		},
	}
	cmd.Flags().Bool("subtitles", false, "also append to the subtitle log")
	cmd.Flags().Bool("hook", false, "also run the configured hook per subtitle")
	cmd.Flags().String("to", "", "target language for this run (overrides translate.target)")
	return cmd
}
